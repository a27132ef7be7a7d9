package cmd

import (
	"context"
	"os"

	"github.com/catalystcommunity/app-utils-go/errorutils"
	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/platform"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/runtime"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/sampler"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/scheduler"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/store/postgres_store"
	"github.com/catalystcommunity/reactorcide/workerhost/internal/worker"
	"github.com/gammazero/workerpool"
)

// core bundles the wired-up components a cmd action drives: the manager,
// scheduler, and sampler that serve runs together in one process.
type core struct {
	store     store.Store
	manager   *worker.Manager
	scheduler *scheduler.Scheduler
	sampler   *sampler.Sampler
	closeDB   func()
}

// bootstrap initializes the store and the components built on top of it.
// The store connects first, since the runtime locator reads its persisted
// path from it; the locator's initial search then runs on a workerpool and
// is waited for before the scheduler and sampler are built.
func bootstrap(installDir string) (*core, error) {
	st := postgres_store.PostgresStore
	store.AppStore = st

	closeDB, err := st.Initialize()
	errorutils.LogOnErr(nil, "failed to initialize store", err)
	if err != nil {
		return nil, err
	}

	probe := platform.New()
	locator := runtime.NewLocator(store.AppStore)
	manager := worker.NewManager(store.AppStore, probe, locator, installDir)

	wp := workerpool.New(2)
	wp.Submit(func() {
		if _, err := locator.Locate(context.Background(), installDir); err != nil {
			logging.Log.WithError(err).Warn("initial runtime locator search failed, will retry lazily")
		}
	})
	wp.StopWait()

	sched := scheduler.New(store.AppStore, manager)
	samp := sampler.New(store.AppStore, probe)

	return &core{
		store:     store.AppStore,
		manager:   manager,
		scheduler: sched,
		sampler:   samp,
		closeDB:   closeDB,
	}, nil
}

func installDirFromEnv() string {
	if dir := os.Getenv("WORKER_INSTALL_DIR"); dir != "" {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
