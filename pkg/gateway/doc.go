// Package gateway provides an embeddable run-monitoring gateway that can be
// mounted into other Go applications.
//
// # Overview
//
// The gateway polls an orchestration backend for workflow results, folds the
// raw per-stage event log into one snapshot per run (ordered, deduplicated,
// with placeholders for stages that have not reported) and serves it as JSON.
// Runs can be watched live over server-sent events, terminated, and have a
// stage retried.
//
// # Basic Usage
//
//	cfg := &gateway.Config{
//		Auth: gateway.AuthConfig{
//			APIKeys: []gateway.APIKey{
//				{Name: "dashboard", Key: "secret-key-here"},
//			},
//		},
//		Backend: gateway.BackendConfig{
//			URL: "http://localhost:8000",
//		},
//		Pipeline: gateway.PipelineConfig{
//			TerminalStage:  "publish_script",
//			InternalStages: []string{"load_config", "save_result"},
//		},
//	}
//
//	gw, err := gateway.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := gw.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Using with Existing HTTP Server
//
//	http.Handle("/runwatch/", http.StripPrefix("/runwatch", gw.Handler()))
//
// # Environment-based Configuration
//
//	gw, err := gateway.NewFromEnv()
//
// reads BACKEND_URL, API_KEYS (name:key,name:key), PIPELINE_* and LOG_*.
//
// # Direct Service Access
//
//	snap, err := gw.Service().GetSnapshot(ctx, models.RunIdentity{
//		WorkflowID: "podcast",
//		RunID:      "7f3a",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("%s: %d/%d stages\n", snap.RunStatus, snap.Aggregate.CompletedCount, snap.Aggregate.Total)
package gateway
