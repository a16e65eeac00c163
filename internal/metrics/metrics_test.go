package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBackupLastSuccessTimestampTracksPerFQDN(t *testing.T) {
	BackupLastSuccessTimestamp.Reset()
	BackupLastSuccessTimestamp.WithLabelValues("n1").Set(1000)
	BackupLastSuccessTimestamp.WithLabelValues("n2").Set(2000)

	assert.Equal(t, float64(1000), testutil.ToFloat64(BackupLastSuccessTimestamp.WithLabelValues("n1")))
	assert.Equal(t, float64(2000), testutil.ToFloat64(BackupLastSuccessTimestamp.WithLabelValues("n2")))
}

func TestBackupFilesCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(BackupFilesUploaded)
	BackupFilesUploaded.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(BackupFilesUploaded))

	beforeCached := testutil.ToFloat64(BackupFilesCached)
	BackupFilesCached.Add(3)
	assert.Equal(t, beforeCached+3, testutil.ToFloat64(BackupFilesCached))
}

func TestBackupDurationSecondsObservesByMode(t *testing.T) {
	BackupDurationSeconds.WithLabelValues("full").Observe(12.5)
	BackupDurationSeconds.WithLabelValues("incremental").Observe(3.2)

	assert.NotNil(t, BackupDurationSeconds.WithLabelValues("full"))
}

func TestRestoreHostsFailedGauge(t *testing.T) {
	RestoreHostsFailed.Set(2)
	assert.Equal(t, float64(2), testutil.ToFloat64(RestoreHostsFailed))
}

func TestHandlerReturnsNonNil(t *testing.T) {
	assert.NotNil(t, Handler())
}
