package ledgerflow

import (
	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/drblury/ledgerflow/internal/runtime"
	configpkg "github.com/drblury/ledgerflow/internal/runtime/config"
	errspkg "github.com/drblury/ledgerflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/ledgerflow/internal/runtime/handlers"
	idspkg "github.com/drblury/ledgerflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/ledgerflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/ledgerflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/ledgerflow/internal/runtime/metadata"
	modelspkg "github.com/drblury/ledgerflow/internal/runtime/models"
	observerpkg "github.com/drblury/ledgerflow/internal/runtime/observer"
	wirecodecpkg "github.com/drblury/ledgerflow/internal/runtime/wirecodec"
	transportpkg "github.com/drblury/ledgerflow/transport"
)

type (
	Config = configpkg.Config

	Transaction  = modelspkg.Transaction
	Event        = modelspkg.Event
	EventEmitter = modelspkg.EventEmitter
	EmitterKey   = modelspkg.EmitterKey
	EmitterKind  = modelspkg.EmitterKind

	TransactionStream                            = runtimepkg.TransactionStream
	TransactionCommitter                         = runtimepkg.TransactionCommitter
	Processor[S any]                             = runtimepkg.Processor[S]
	TransactionContext[S any]                    = runtimepkg.TransactionContext[S]
	TransactionHandler[S any]                    = runtimepkg.TransactionHandler[S]
	TransactionHandlerFunc[S any]                = runtimepkg.TransactionHandlerFunc[S]
	DefaultTransactionHandler[S any]             = runtimepkg.DefaultTransactionHandler[S]
	EventProcessor                               = runtimepkg.EventProcessor
	Status                                       = runtimepkg.Status
	StatusSource                                 = runtimepkg.StatusSource
	HTTPServers                                  = runtimepkg.HTTPServers
	Registry                                     = handlerpkg.Registry
	RegistryEntry                                = handlerpkg.Entry
	EventContext[S any, C any]                   = handlerpkg.EventContext[S, C]
	EventHandler[S any, C any]                   = handlerpkg.EventHandler[S, C]
	EventHandlerFunc[S any, C any]               = handlerpkg.EventHandlerFunc[S, C]
	JSONEventHandler[S, C, T any]                = handlerpkg.JSONEventHandler[S, C, T]
	ProtoEventHandler[S, C any, T proto.Message] = handlerpkg.ProtoEventHandler[S, C, T]

	Logger           = observerpkg.Logger
	NopLogger        = observerpkg.NopLogger
	Hooks            = observerpkg.Hooks
	Stats            = observerpkg.Stats
	DefaultLogger    = observerpkg.DefaultLogger
	PrometheusLogger = observerpkg.PrometheusLogger
	Checkpointer     = observerpkg.Checkpointer
	CursorSaver      = observerpkg.CursorSaver

	EventRetryError       = errspkg.EventRetryError
	TransactionRetryError = errspkg.TransactionRetryError
	UnrecoverableError    = errspkg.UnrecoverableError
	Classification        = errspkg.Classification

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

var (
	LoadConfig  = configpkg.Load
	ParseConfig = configpkg.Parse

	MethodEmitter   = modelspkg.MethodEmitter
	FunctionEmitter = modelspkg.FunctionEmitter
	MethodKey       = modelspkg.MethodKey
	FunctionKey     = modelspkg.FunctionKey

	NewRegistry = handlerpkg.NewRegistry

	RetryEvent       = errspkg.RetryEvent
	RetryTransaction = errspkg.RetryTransaction
	Unrecoverable    = errspkg.Unrecoverable
	Classify         = errspkg.Classify

	NewDefaultLogger             = observerpkg.NewDefaultLogger
	NewDefaultLoggerWithInterval = observerpkg.NewDefaultLoggerWithInterval
	NewPrometheusLogger          = observerpkg.NewPrometheusLogger
	NewCheckpointer              = observerpkg.NewCheckpointer
	MultiLogger                  = observerpkg.Multi
	StatsOf                      = observerpkg.StatsOf

	StatusHandler  = runtimepkg.StatusHandler
	NewHTTPServers = runtimepkg.NewHTTPServers

	// Use RegisterTransport and BuildTransport with the transport packages.
	// Import individual transports via: _ "github.com/drblury/ledgerflow/transport/kafka"
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities

	EncodeTransaction = wirecodecpkg.Encode
	DecodeTransaction = wirecodecpkg.Decode

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrStreamRequired      = errspkg.ErrStreamRequired
	ErrRegistryRequired    = errspkg.ErrRegistryRequired
	ErrHandlerRequired     = errspkg.ErrHandlerRequired
	ErrEventNameRequired   = errspkg.ErrEventNameRequired
	ErrPublisherRequired   = errspkg.ErrPublisherRequired
	ErrSubscriberRequired  = errspkg.ErrSubscriberRequired
	ErrTopicRequired       = errspkg.ErrTopicRequired
	ErrCursorStoreRequired = errspkg.ErrCursorStoreRequired
	ErrStreamStarted       = errspkg.ErrStreamStarted
	ErrProcessorRunning    = errspkg.ErrProcessorRunning
	ErrOutOfOrder          = errspkg.ErrOutOfOrder

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewWatermillAdapter       = loggingpkg.NewWatermillAdapter

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// Wire content types for relayed transactions.
const (
	ContentTypeJSON     = wirecodecpkg.ContentTypeJSON
	ContentTypeProtobuf = wirecodecpkg.ContentTypeProtobuf
)

// Error classifications returned by Classify.
const (
	ClassNone             = errspkg.ClassNone
	ClassEventRetry       = errspkg.ClassEventRetry
	ClassTransactionRetry = errspkg.ClassTransactionRetry
	ClassUnrecoverable    = errspkg.ClassUnrecoverable
)

const (
	DefaultTransactionRetryDelay = runtimepkg.DefaultTransactionRetryDelay
	DefaultEventRetryDelay       = runtimepkg.DefaultEventRetryDelay
	StatusPath                   = runtimepkg.StatusPath
)

func NewProcessor[S any](stream TransactionStream, registry *Registry, state S) *Processor[S] {
	return runtimepkg.NewProcessor(stream, registry, state)
}

func Register[S any, C any](r *Registry, emitter EmitterKey, eventName string, handler EventHandler[S, C]) error {
	return handlerpkg.Register(r, emitter, eventName, handler)
}

func RegisterFunc[S any, C any](r *Registry, emitter EmitterKey, eventName string, fn func(EventContext[S, C]) error) error {
	return handlerpkg.RegisterFunc(r, emitter, eventName, fn)
}

// GetHandler panics when the handler stored for the key has other state or
// transaction context types.
func GetHandler[S any, C any](r *Registry, emitter EmitterKey, eventName string) (EventHandler[S, C], bool) {
	return handlerpkg.GetHandler[S, C](r, emitter, eventName)
}

// ProcessEvents dispatches the events of the current transaction, for use in
// custom transaction handlers.
func ProcessEvents[S any, C any](ctx TransactionContext[S], txCtx *C) error {
	return runtimepkg.ProcessEvents(ctx.Context, ctx.Events, ctx.State, ctx.Registry, txCtx)
}

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
