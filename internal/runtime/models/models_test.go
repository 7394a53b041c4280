package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitterKey_VariantAware(t *testing.T) {
	method := MethodEmitter("package_rdx1abc")
	function := FunctionEmitter("package_rdx1abc", "")

	assert.Equal(t, method.Address(), function.Address())
	assert.NotEqual(t, method.Key(), function.Key())
}

func TestEmitterKey_FunctionIncludesBlueprint(t *testing.T) {
	a := FunctionEmitter("package_rdx1abc", "Radiswap").Key()
	b := FunctionEmitter("package_rdx1abc", "Pool").Key()

	assert.NotEqual(t, a, b)
	assert.Equal(t, FunctionKey("package_rdx1abc", "Radiswap"), a)
}

func TestEmitterKey_String(t *testing.T) {
	assert.Equal(t, "method:component_rdx1xyz", MethodKey("component_rdx1xyz").String())
	assert.Equal(t, "function:package_rdx1abc/Radiswap", FunctionKey("package_rdx1abc", "Radiswap").String())
	assert.Equal(t, "emitter_kind(9)", EmitterKind(9).String())
}

func TestTransaction_LogFields(t *testing.T) {
	tx := &Transaction{IntentHash: "txid_1", StateVersion: 42, Events: []Event{{Name: "a"}, {Name: "b"}}}

	fields := tx.LogFields()
	assert.Equal(t, "txid_1", fields["intent_hash"])
	assert.Equal(t, uint64(42), fields["state_version"])
	assert.Equal(t, 2, fields["events"])
}
