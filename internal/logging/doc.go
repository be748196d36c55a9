// Package logging provides optional file-backed structured logging for
// host programs embedding the library engine. The engine itself never
// calls slog.SetDefault; callers inject a *slog.Logger into every
// constructor and this package exists only to make constructing one easy.
package logging
