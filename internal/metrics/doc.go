// Package metrics provides build and render metrics for the docs site.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics stay optional:
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	pipe := pipeline.New(stages, pipeline.WithRecorder(recorder))
//
// The dev server exposes the registry on /metrics via HTTPHandler.
package metrics
