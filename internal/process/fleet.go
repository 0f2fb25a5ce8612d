package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// maxFleetPasses bounds the kill loop. A master may fork between listing
// and kill, so passes repeat until one finds nothing.
const maxFleetPasses = 5

// fleetPassDelay is waited when a pass only finds processes already
// signalled.
const fleetPassDelay = 50 * time.Millisecond

// FleetStrategy runs a binary that forks into worker processes and stops
// the whole fleet by matching process names. No single pid or handle
// represents the fleet.
type FleetStrategy struct {
	strategyBase

	fsOnce sync.Once
	fs     *procfs.FS
	fsErr  error
}

// Terminate kills every process whose name matches the variant's pattern,
// then reaps the handle. Finding no match is logged, not returned: the
// fleet may already have exited.
func (s *FleetStrategy) Terminate(ctx context.Context, h *Handle) error {
	err := s.terminate(ctx, h)
	s.observe(KindFleet, err)
	return err
}

func (s *FleetStrategy) terminate(ctx context.Context, h *Handle) error {
	v := h.Variant()
	if v.Pattern == "" {
		return &TerminationError{Variant: v.Name, Pid: h.Pid(), Err: errNoFleetPattern}
	}
	re, err := regexp.Compile(v.Pattern)
	if err != nil {
		return &TerminationError{Variant: v.Name, Pid: h.Pid(), Err: err}
	}

	killed, err := s.KillMatching(re)
	if err != nil {
		return &TerminationError{Variant: v.Name, Pid: h.Pid(), Err: err}
	}
	if s.observer != nil {
		s.observer.ObserveFleetKill(killed)
	}

	if killed == 0 {
		s.logger.Warn("fleet_kill_no_match",
			"variant", v.Name,
			"pattern", v.Pattern,
		)
	} else {
		s.logger.Info("fleet_killed",
			"variant", v.Name,
			"pattern", v.Pattern,
			"processes", killed,
		)
	}

	// The launched parent normally matched too; reap escalates if not.
	if err := s.reap(ctx, h); err != nil {
		return &TerminationError{Variant: v.Name, Pid: h.Pid(), Err: err}
	}
	return nil
}

// KillMatching sends SIGKILL to every live process, other than the caller,
// whose comm name or argv[0] base name matches re. It returns the number
// of distinct processes signalled.
func (s *FleetStrategy) KillMatching(re *regexp.Regexp) (int, error) {
	fs, err := s.procFS()
	if err != nil {
		return 0, err
	}

	self := os.Getpid()
	signalled := make(map[int]struct{})

	for pass := 0; pass < maxFleetPasses; pass++ {
		pids, err := MatchProcesses(fs, re, self)
		if err != nil {
			return len(signalled), err
		}
		if len(pids) == 0 {
			return len(signalled), nil
		}

		fresh := 0
		var errs []error
		for _, pid := range pids {
			// SIGKILLed processes stay listed until they exit
			if _, ok := signalled[pid]; ok {
				continue
			}
			fresh++
			if err := unix.Kill(pid, unix.SIGKILL); err != nil {
				if errors.Is(err, unix.ESRCH) {
					continue
				}
				errs = append(errs, fmt.Errorf("kill pid %d: %w", pid, err))
				continue
			}
			signalled[pid] = struct{}{}
		}
		if len(errs) > 0 {
			return len(signalled), errors.Join(errs...)
		}
		if fresh == 0 {
			time.Sleep(fleetPassDelay)
		}
	}

	s.reportSurvivors(fs, re, self)
	return len(signalled), nil
}

// reportSurvivors logs processes still matching re after the last pass.
func (s *FleetStrategy) reportSurvivors(fs *procfs.FS, re *regexp.Regexp, self int) {
	pids, err := MatchProcesses(fs, re, self)
	if err != nil || len(pids) == 0 {
		return
	}
	s.logger.Warn("fleet_kill_incomplete",
		"pattern", re.String(),
		"remaining_pids", pids,
		"passes", maxFleetPasses,
	)
}

func (s *FleetStrategy) procFS() (*procfs.FS, error) {
	s.fsOnce.Do(func() {
		if s.fs != nil {
			return
		}
		fs, err := procfs.NewDefaultFS()
		if err != nil {
			s.fsErr = fmt.Errorf("open procfs: %w", err)
			return
		}
		s.fs = &fs
	})
	return s.fs, s.fsErr
}

// MatchProcesses lists the pids of live (non-zombie) processes whose name
// matches re, skipping exclude.
func MatchProcesses(fs *procfs.FS, re *regexp.Regexp, exclude int) ([]int, error) {
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var pids []int
	for _, p := range procs {
		if p.PID == exclude {
			continue
		}
		if !processMatches(p, re) {
			continue
		}
		if stat, err := p.Stat(); err == nil && stat.State == "Z" {
			continue
		}
		pids = append(pids, p.PID)
	}
	return pids, nil
}

func processMatches(p procfs.Proc, re *regexp.Regexp) bool {
	if comm, err := p.Comm(); err == nil && re.MatchString(comm) {
		return true
	}
	if cmdline, err := p.CmdLine(); err == nil && len(cmdline) > 0 {
		return re.MatchString(filepath.Base(cmdline[0]))
	}
	return false
}
