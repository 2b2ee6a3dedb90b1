// Package pipeline converts a scanned score page into notes.
//
// A Converter is built once from a validated config.Config, the glyph
// Templates and optional capabilities (duration classifier, title
// recognizer, logger), then reused for many pages:
//
//	conv, err := pipeline.New(cfg, templates,
//	    pipeline.WithClassifier(classify.FixedClassifier{Duration: classify.Quarter}),
//	    pipeline.WithLogger(log.Default()))
//	result, err := conv.ConvertFile(ctx, "scan.png")
//
// # Failure Isolation
//
// Only an empty page (ErrEmptyPage) or a cancelled context fails a
// conversion. Degenerate staff lines, staffs without matches, accidental
// detection failures and classification failures are recorded as Problems
// and the remaining staffs and symbols are still converted. Symbols that land
// off the pitch table are dropped and counted in each staff's Stats.
//
// # Concurrency
//
// Staffs are processed in parallel, each reading the shared page Mats through
// its own region view. Results are stored by staff index, so notes always
// come out top staff first and left to right within a staff.
package pipeline
