// Package motionqa measures motion and temporal quality of AI-generated video.
//
// Given a frame stream with presentation timestamps, motionqa reports the
// temporal defects typical of generated clips: irregular frame cadence
// (jitter), repeated frames, jerky motion and non-rigid "wobble" distortion.
// Every analysis is a read-only consumer of the same frame sequence, so the
// [Engine] runs them either in one shared pass or in parallel passes over
// independently reopened sources.
//
// # Getting Started
//
//	cfg, err := config.Load(config.DefaultFile)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine, err := motionqa.NewEngine(cfg, nil) // nil selects the block matcher
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	src, err := frame.OpenY4M("clip.y4m")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Close()
//
//	report, err := engine.Analyze(ctx, src)
//	if err != nil {
//	    log.Fatal(err) // canceled or the source failed; no partial report
//	}
//	fmt.Printf("overall %.1f (%s)\n", report.Summary.Overall, report.Summary.Level)
//
// # Analyzers
//
//   - [timing]: effective frame rate, jitter, per-second rate and drops
//   - [similarity]: exact and near duplicate frames
//   - [flow]: optical flow fields and their derived views
//   - [continuity]: jerk peaks in the motion magnitude series
//   - [wobble]: spatial inconsistency of block-wise motion
//   - [dynamics]: brightness, contrast and frame difference per second
//
// Each analyzer package is usable on its own. The Engine only wires them to
// a frame source and collects their reports.
//
// # Failures
//
// An analyzer that cannot compute its statistic, for example because the
// clip is too short, never reports a zero score. Its report stays nil and
// the error is kept in [Report.Failures]. Cancellation and frame source
// failures abort the whole run instead.
//
// # Thread Safety
//
// An Engine may run several analyses concurrently. The progress callback
// may be invoked from several goroutines during [Engine.AnalyzeParallel];
// calls are serialized by the Engine.
package motionqa
