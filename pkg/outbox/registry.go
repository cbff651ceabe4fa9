package outbox

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/atelie-backend/pkg/enums"
)

type decoderFunc func(payload json.RawMessage) (Action, error)

type registryKey struct {
	kind    enums.ActionKind
	version int
}

// DecoderRegistry resolves stored envelopes back into actions, keyed by
// action kind and envelope version.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

// DefaultDecoders registers the v1 decoder for every known action kind.
func DefaultDecoders() *DecoderRegistry {
	r := NewDecoderRegistry()
	for _, kind := range []enums.ActionKind{
		enums.ActionCreateLabel,
		enums.ActionEmitFiscalDocument,
		enums.ActionForwardTracking,
		enums.ActionPushOrder,
	} {
		r.Register(kind, CurrentVersion, decodeV1(kind))
	}
	return r
}

func (r *DecoderRegistry) Register(kind enums.ActionKind, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{kind: kind, version: version}] = decoder
}

func (r *DecoderRegistry) Decode(kind enums.ActionKind, version int, payload json.RawMessage) (Action, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{kind: kind, version: version}]; ok {
		return decoder(payload)
	}
	return Action{}, fmt.Errorf("decoder not registered for %s@v%d", kind, version)
}

// Resolve unwraps a stored row payload into its envelope and action.
func (r *DecoderRegistry) Resolve(kind enums.ActionKind, raw []byte) (PayloadEnvelope, Action, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, Action{}, fmt.Errorf("decode envelope: %w", err)
	}
	action, err := r.Decode(kind, envelope.Version, envelope.Data)
	if err != nil {
		return envelope, Action{}, err
	}
	return envelope, action, nil
}

func decodeV1(kind enums.ActionKind) decoderFunc {
	return func(payload json.RawMessage) (Action, error) {
		var action Action
		if err := json.Unmarshal(payload, &action); err != nil {
			return Action{}, err
		}
		if action.Kind != kind {
			return Action{}, fmt.Errorf("payload kind %q does not match row kind %q", action.Kind, kind)
		}
		return action, nil
	}
}
