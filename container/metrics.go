package container

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/PowerDNS/pbz/frame"
)

var (
	metricFramesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbz_reader_frames_total",
			Help: "Number of frames read by frame type",
		},
		[]string{"type"},
	)
	metricPayloadBytesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pbz_reader_payload_bytes_total",
			Help: "Total frame payload bytes read (uncompressed)",
		},
	)
	metricReadErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbz_reader_errors_total",
			Help: "Number of read errors by kind, excluding clean end of stream",
		},
		[]string{"kind"},
	)
	metricFramesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbz_writer_frames_total",
			Help: "Number of frames written by frame type",
		},
		[]string{"type"},
	)
	metricPayloadBytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pbz_writer_payload_bytes_total",
			Help: "Total frame payload bytes written (uncompressed)",
		},
	)
)

func init() {
	prometheus.MustRegister(metricFramesRead)
	prometheus.MustRegister(metricPayloadBytesRead)
	prometheus.MustRegister(metricReadErrors)
	prometheus.MustRegister(metricFramesWritten)
	prometheus.MustRegister(metricPayloadBytesWritten)

	// Make the series visible before the first frame
	for _, t := range frame.Types {
		metricFramesRead.WithLabelValues(t.String())
		metricFramesWritten.WithLabelValues(t.String())
	}
}
