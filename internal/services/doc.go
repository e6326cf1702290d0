// Package services defines shared utilities consumed by the pipeline jobs and
// external integrations.
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper that keep failure
//     classification (fatal vs isolated-per-item) uniform across jobs.
//   - A thin command-runner abstraction that makes external converter
//     invocation testable.
//
// Use these helpers when wiring new job logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
