package metricsfx

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/archiver/pkg/domain"
	"github.com/yurykabanov/archiver/pkg/http/handler"
	"github.com/yurykabanov/archiver/pkg/metrics"
)

func Collector() *metrics.Collector {
	return metrics.NewCollector()
}

func Registry(collector *metrics.Collector) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collector,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func LatestRunMetricHandler(
	logger *logrus.Logger,
	sources []domain.Source,
	repository handler.RunRepository,
) *handler.RunMetricHandler {
	return handler.NewRunMetricHandler(logger, sources, repository)
}

func WindowMetricHandler(logger *logrus.Logger, repository handler.RunRepository) *handler.WindowHandler {
	return handler.NewWindowHandler(logger, repository)
}

func RegisterMetricHandlers(
	router *mux.Router,
	registry *prometheus.Registry,
	runs *handler.RunMetricHandler,
	windows *handler.WindowHandler,
) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Handle("/metrics/runs", runs)
	router.Handle("/metrics/windows/{source}/{day}", windows)
}
