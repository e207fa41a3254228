package loader

import (
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithScene is an option builder that pre-populates the scene cache.
//
// Parameters:
//   - key: the cache key for the scene
//   - s: the scene to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the scene option to a loader
func WithScene(key string, s scene.Scene) LoaderBuilderOption {
	return func(l *loader) {
		l.sceneCache[key] = s
	}
}

// WithSceneOptions sets options applied to every scene the loader creates, e.g. to import
// scenes inactive.
//
// Parameters:
//   - options: the scene options
//
// Returns:
//   - LoaderBuilderOption: a function that applies the scene options to a loader
func WithSceneOptions(options ...scene.SceneBuilderOption) LoaderBuilderOption {
	return func(l *loader) {
		l.sceneOptions = append(l.sceneOptions, options...)
	}
}
