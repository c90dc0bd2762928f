// Package statsview serves live runtime statistics (goroutines, heap,
// GC) over HTTP while a session runs.  Useful for watching the link's
// reader goroutine and buffer pool under a chatty peer.
//
// After launch, graphs are at http://<addr>/debug/statsview and the
// standard pprof handlers at http://<addr>/debug/pprof/.
package statsview

import (
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"

	"iduncart/util"
)

const path = "/debug/statsview"

// Launch starts the viewer on addr in the background and returns a
// function that stops it.
func Launch(addr string, logger *util.Logger) (stop func()) {
	viewer.SetConfiguration(viewer.WithAddr(addr))
	mgr := statsview.New()

	go func() {
		if err := mgr.Start(); err != nil {
			logger.Verbose("statsview: %v", err)
		}
	}()

	logger.Info("stats server available at http://%s%s", addr, path)
	return mgr.Stop
}
