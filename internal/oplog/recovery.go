package oplog

import "github.com/yzkee/super-productivity-sub001/internal/op"

// RecoveryReport is the result of StartupRecovery.
type RecoveryReport struct {
	PendingRemoteOps   []*op.LogEntry
	FailedRemoteOps    []*op.LogEntry
	RestoredFromBackup bool
	RestoredSnapshot   op.StateSnapshot
}

// StartupRecovery performs the three crash-recovery steps required at
// startup:
//  1. surface pending remote ops to the sync engine for re-application;
//  2. surface failed (non-rejected) remote ops for retry;
//  3. detect and restore from a state-cache backup if present, which
//     indicates an interrupted migration.
func (s *Store) StartupRecovery() (RecoveryReport, error) {
	var report RecoveryReport

	pending, err := s.GetPendingRemoteOps()
	if err != nil {
		return report, err
	}
	report.PendingRemoteOps = pending

	failed, err := s.GetFailedRemoteOps()
	if err != nil {
		return report, err
	}
	report.FailedRemoteOps = failed

	hasBackup, err := s.hasStateCacheBackup()
	if err != nil {
		return report, err
	}
	if hasBackup {
		s.log.Warn().Msg("oplog: found state-cache backup at startup, restoring (interrupted migration)")
		snap, ok, err := s.RestoreStateCacheFromBackup()
		if err != nil {
			return report, err
		}
		report.RestoredFromBackup = ok
		report.RestoredSnapshot = snap
	}

	return report, nil
}
