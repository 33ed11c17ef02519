package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusReport_Total(t *testing.T) {
	tests := []struct {
		name          string
		report        StatusReport
		wantTotal     int64
		wantEstimated bool
	}{
		{
			name:      "exact size wins",
			report:    StatusReport{TotalBytes: int64Ptr(500), TotalBytesEstimate: float64Ptr(900)},
			wantTotal: 500,
		},
		{
			name:          "falls back to estimate",
			report:        StatusReport{TotalBytesEstimate: float64Ptr(900.7)},
			wantTotal:     900,
			wantEstimated: true,
		},
		{
			name:      "unknown size",
			report:    StatusReport{},
			wantTotal: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, estimated := tt.report.Total()
			assert.Equal(t, tt.wantTotal, total)
			assert.Equal(t, tt.wantEstimated, estimated)
		})
	}
}

func TestStatusReport_Label(t *testing.T) {
	tests := []struct {
		name string
		info VideoInfo
		want string
	}{
		{
			name: "creator preferred",
			info: VideoInfo{Creator: "Band", Uploader: "Label VEVO", Title: "Hit", DisplayID: "x1"},
			want: "Band - Hit [x1]",
		},
		{
			name: "uploader fallback",
			info: VideoInfo{Uploader: "Channel", Title: "Clip", ID: "y2"},
			want: "Channel - Clip [y2]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := StatusReport{Info: tt.info}
			assert.Equal(t, tt.want, r.Label())
		})
	}
}

func TestVideoInfo_Part(t *testing.T) {
	assert.Equal(t, "video", (&VideoInfo{ACodec: "none", VCodec: "vp9"}).Part())
	assert.Equal(t, "audio", (&VideoInfo{ACodec: "opus", VCodec: "none"}).Part())
	assert.Equal(t, "", (&VideoInfo{ACodec: "opus", VCodec: "vp9"}).Part())
}

func TestStatusReport_IsRealCompletion(t *testing.T) {
	simulated := StatusReport{Status: ReportFinished}
	completed := StatusReport{Status: ReportFinished, Info: VideoInfo{RealDownload: true}}
	inFlight := StatusReport{Status: ReportDownloading, Info: VideoInfo{RealDownload: true}}

	assert.False(t, simulated.IsRealCompletion())
	assert.True(t, completed.IsRealCompletion())
	assert.False(t, inFlight.IsRealCompletion())
}

func TestKind_Direction(t *testing.T) {
	tests := []struct {
		kind       Kind
		fromWorker bool
		fromMaster bool
	}{
		{KindGreeting, true, true},
		{KindLog, true, false},
		{KindBatchRequest, true, false},
		{KindStatus, true, false},
		{KindDownloadStart, true, false},
		{KindDownloadEnd, true, false},
		{KindBatch, false, true},
		{KindEndRequest, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.fromWorker, tt.kind.FromWorker())
			assert.Equal(t, tt.fromMaster, tt.kind.FromMaster())
		})
	}
}
