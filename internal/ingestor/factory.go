package ingestor

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/chanarr/chanarr/internal/models"
)

// HandlerFactory resolves stream source handlers by source type.
// A factory starts with the built-in handlers already registered.
type HandlerFactory struct {
	mu       sync.RWMutex
	handlers map[models.SourceType]SourceHandler
}

// NewHandlerFactory returns a factory with the default handlers.
func NewHandlerFactory() *HandlerFactory {
	f := &HandlerFactory{handlers: make(map[models.SourceType]SourceHandler)}
	f.Register(NewM3UHandler())
	return f
}

// Register adds or replaces the handler for its declared type.
func (f *HandlerFactory) Register(handler SourceHandler) {
	f.mu.Lock()
	f.handlers[handler.Type()] = handler
	f.mu.Unlock()
}

// Get resolves the handler for a source type.
func (f *HandlerFactory) Get(sourceType models.SourceType) (SourceHandler, error) {
	f.mu.RLock()
	handler, ok := f.handlers[sourceType]
	f.mu.RUnlock()
	if ok {
		return handler, nil
	}
	return nil, fmt.Errorf("no handler registered for source type: %s", sourceType)
}

// GetForSource resolves the handler for a source's type.
func (f *HandlerFactory) GetForSource(source *models.StreamSource) (SourceHandler, error) {
	if source == nil {
		return nil, errors.New("source is nil")
	}
	return f.Get(source.Type)
}

// SupportedTypes lists the registered source types.
func (f *HandlerFactory) SupportedTypes() []models.SourceType {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Collect(maps.Keys(f.handlers))
}

// EpgHandlerFactory resolves EPG source handlers by source type.
type EpgHandlerFactory struct {
	mu       sync.RWMutex
	handlers map[models.EpgSourceType]EpgHandler
}

// NewEpgHandlerFactory returns a factory with the default EPG handlers.
func NewEpgHandlerFactory() *EpgHandlerFactory {
	f := &EpgHandlerFactory{handlers: make(map[models.EpgSourceType]EpgHandler)}
	f.Register(NewXMLTVHandler())
	return f
}

// Register adds or replaces the EPG handler for its declared type.
func (f *EpgHandlerFactory) Register(handler EpgHandler) {
	f.mu.Lock()
	f.handlers[handler.Type()] = handler
	f.mu.Unlock()
}

// Get resolves the EPG handler for a source type.
func (f *EpgHandlerFactory) Get(sourceType models.EpgSourceType) (EpgHandler, error) {
	f.mu.RLock()
	handler, ok := f.handlers[sourceType]
	f.mu.RUnlock()
	if ok {
		return handler, nil
	}
	return nil, fmt.Errorf("no EPG handler registered for source type: %s", sourceType)
}

// GetForSource resolves the EPG handler for a source's type.
func (f *EpgHandlerFactory) GetForSource(source *models.EpgSource) (EpgHandler, error) {
	if source == nil {
		return nil, errors.New("source is nil")
	}
	return f.Get(source.Type)
}

// SupportedTypes lists the registered EPG source types.
func (f *EpgHandlerFactory) SupportedTypes() []models.EpgSourceType {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Collect(maps.Keys(f.handlers))
}
