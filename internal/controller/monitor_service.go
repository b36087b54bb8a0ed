package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"cv-console/internal/config"
	"cv-console/internal/grid"
	"cv-console/internal/metrics"
	"cv-console/internal/relay"
	"cv-console/internal/stream"
	"cv-console/internal/types"
)

// ErrNoFrame у плитки еще нет кадра
var ErrNoFrame = errors.New("no frame received yet")

// CameraRegistry источник списка камер
type CameraRegistry interface {
	ListCameras(ctx context.Context) ([]types.Camera, error)
	ListCamerasWithRetry(ctx context.Context) ([]types.Camera, error)
}

// HealthReporter получает живость камер
type HealthReporter interface {
	SetCameraServing(cameraID string, serving bool)
}

type nopHealth struct{}

func (nopHealth) SetCameraServing(string, bool) {}

type cachedFrame struct {
	frame stream.Frame
	jpeg  []byte
}

// TileDetail плитка вместе со статистикой камеры
type TileDetail struct {
	Tile  grid.TileView `json:"tile"`
	Stats *CameraStats  `json:"stats,omitempty"`
}

// MonitorService - сервис сетки мониторинга
type MonitorService struct {
	logger   *zap.Logger
	config   *config.Config
	registry CameraRegistry
	health   HealthReporter
	metrics  *metrics.Metrics
	dialer   stream.Dialer

	applyMu sync.Mutex

	grid   *grid.Grid
	repo   *StatsRepository
	frames *lru.Cache[string, cachedFrame]
	relay  *relay.Hub
}

// NewMonitorService создает сервис и пустую сетку
func NewMonitorService(
	logger *zap.Logger,
	cfg *config.Config,
	registry CameraRegistry,
	health HealthReporter,
	m *metrics.Metrics,
	dialer stream.Dialer,
) (*MonitorService, error) {
	if health == nil {
		health = nopHealth{}
	}
	if dialer == nil {
		dialer = stream.NewWebSocketDialer(cfg.Stream.HandshakeTimeout, cfg.Stream.MaxMessageBytes)
	}

	cacheSize := cfg.Grid.FrameCacheSize
	if cacheSize <= 0 {
		cacheSize = 1
	}
	frames, err := lru.New[string, cachedFrame](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame cache: %w", err)
	}

	s := &MonitorService{
		logger:   logger,
		config:   cfg,
		registry: registry,
		health:   health,
		metrics:  m,
		dialer:   dialer,
		repo:     NewStatsRepository(),
		frames:   frames,
		relay:    relay.NewHub(logger, cfg.Relay.BufferSize),
	}

	g, err := grid.New(logger, s.newClient, cfg.StreamEndpoint, cfg.Grid.Layout, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create grid: %w", err)
	}
	s.grid = g

	return s, nil
}

// newClient создает клиента плитки. Обработчики пишут только в
// репозиторий статистики, health и хаб ретрансляции, к сетке не обращаются.
func (s *MonitorService) newClient(cam types.Camera) *stream.Client {
	id := grid.TileKey(cam)
	rc := s.config.Stream.Reconnect

	return stream.NewClient(s.logger,
		stream.WithCameraID(id),
		stream.WithDialer(s.dialer),
		stream.WithMetrics(s.metrics),
		stream.WithReconnect(stream.ReconnectPolicy{
			Enabled:      rc.Enabled,
			MaxAttempts:  rc.MaxAttempts,
			InitialDelay: rc.InitialDelay,
			MaxDelay:     rc.MaxDelay,
			Multiplier:   rc.Multiplier,
		}),
		stream.OnState(func(st stream.State) {
			s.repo.RecordState(id, st)
			s.health.SetCameraServing(id, st == stream.StateConnected)
			s.relay.PublishState(id, st)
		}),
		stream.OnFrame(func(f stream.Frame) {
			s.repo.RecordFrame(id, f.Size(), f.ReceivedAt)
			s.relay.PublishFrame(id, f)
		}),
		stream.OnStats(func(st stream.Stats) {
			s.repo.RecordFPS(id, st.FPS)
			s.relay.PublishStats(id, st)
		}),
	)
}

// Bootstrap загружает камеры при старте с повторными попытками
func (s *MonitorService) Bootstrap(ctx context.Context) error {
	cams, err := s.registry.ListCamerasWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap cameras: %w", err)
	}

	s.apply(cams)
	s.logger.Info("Monitor bootstrapped", zap.Int("cameras", len(cams)))
	return nil
}

// Refresh перечитывает реестр камер без повторов
func (s *MonitorService) Refresh(ctx context.Context) (int, error) {
	cams, err := s.registry.ListCameras(ctx)
	if err != nil {
		return 0, fmt.Errorf("refresh cameras: %w", err)
	}

	s.apply(cams)
	return len(cams), nil
}

// SetCameras применяет список камер напрямую
func (s *MonitorService) SetCameras(cams []types.Camera) {
	s.apply(cams)
}

// apply заменяет список камер. Клиенты удаленных камер закрываются в
// SetCameras, поэтому их health и статистика сбрасываются здесь.
func (s *MonitorService) apply(cams []types.Camera) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	removed := make(map[string]struct{})
	for _, cam := range s.grid.Cameras() {
		if id := grid.TileKey(cam); id != "" {
			removed[id] = struct{}{}
		}
	}

	s.grid.SetCameras(cams)

	for _, cam := range cams {
		delete(removed, grid.TileKey(cam))
	}
	for id := range removed {
		s.repo.Remove(id)
		s.frames.Remove(id)
		s.health.SetCameraServing(id, false)
		s.logger.Info("Camera removed from grid", zap.String("camera_id", id))
	}

	s.syncHealth()
}

// SetLayout меняет раскладку
func (s *MonitorService) SetLayout(n int) error {
	if err := s.grid.SetLayout(n); err != nil {
		return err
	}
	s.syncHealth()
	return nil
}

func (s *MonitorService) NextPage() grid.Page {
	s.grid.NextPage()
	s.syncHealth()
	return s.grid.Snapshot()
}

func (s *MonitorService) PrevPage() grid.Page {
	s.grid.PrevPage()
	s.syncHealth()
	return s.grid.Snapshot()
}

// Page возвращает текущую страницу
func (s *MonitorService) Page() grid.Page {
	return s.grid.Snapshot()
}

// Tile возвращает плитку со статистикой
func (s *MonitorService) Tile(cameraID string) (*TileDetail, error) {
	view, err := s.grid.Tile(cameraID)
	if err != nil {
		return nil, err
	}

	detail := &TileDetail{Tile: view}
	if stats, ok := s.repo.GetStats(cameraID); ok {
		detail.Stats = &stats
	}
	return detail, nil
}

// Frame возвращает последний кадр видимой камеры
func (s *MonitorService) Frame(cameraID string) (stream.Frame, error) {
	client, err := s.grid.Client(cameraID)
	if err != nil {
		return stream.Frame{}, err
	}

	f, ok := client.Frame()
	if !ok {
		return stream.Frame{}, ErrNoFrame
	}
	return f, nil
}

// JPEG возвращает декодированный последний кадр. Каждый кадр
// декодируется один раз.
func (s *MonitorService) JPEG(cameraID string) ([]byte, stream.Frame, error) {
	f, err := s.Frame(cameraID)
	if err != nil {
		return nil, stream.Frame{}, err
	}

	if cached, ok := s.frames.Get(cameraID); ok &&
		cached.frame.Seq == f.Seq && cached.frame.ReceivedAt.Equal(f.ReceivedAt) {
		return cached.jpeg, f, nil
	}

	data, err := f.JPEG()
	if err != nil {
		return nil, stream.Frame{}, fmt.Errorf("decode frame of %s: %w", cameraID, err)
	}

	s.frames.Add(cameraID, cachedFrame{frame: f, jpeg: data})
	return data, f, nil
}

// Reconnect перезапускает поток камеры
func (s *MonitorService) Reconnect(cameraID string) error {
	s.logger.Info("Reconnect requested", zap.String("camera_id", cameraID))
	return s.grid.Reconnect(cameraID)
}

// Relay возвращает хаб ретрансляции кадров
func (s *MonitorService) Relay() *relay.Hub {
	return s.relay
}

// LiveSnapshot текущее состояние и последний кадр плитки для нового зрителя
func (s *MonitorService) LiveSnapshot(cameraID string) ([]relay.Message, error) {
	client, err := s.grid.Client(cameraID)
	if err != nil {
		return nil, err
	}

	snap := client.Snapshot()
	msgs := []relay.Message{{State: snap.State}}
	if snap.Frame != nil {
		msgs = append(msgs, relay.Message{Image: snap.Frame.Image, Seq: snap.Frame.Seq})
	}
	if snap.FPS != nil {
		fps := *snap.FPS
		msgs = append(msgs, relay.Message{FPS: &fps})
	}
	return msgs, nil
}

// Stats возвращает статистику всех камер
func (s *MonitorService) Stats() []CameraStats {
	return s.repo.GetAllStats()
}

// syncHealth помечает камеры без живого клиента как NOT_SERVING.
// Камеры с клиентом обновляются его обработчиками.
func (s *MonitorService) syncHealth() {
	for _, cam := range s.grid.Cameras() {
		id := grid.TileKey(cam)
		if id == "" {
			continue
		}
		if _, err := s.grid.Client(id); err == nil {
			continue
		}
		s.repo.MarkInactive(id)
		s.health.SetCameraServing(id, false)
	}
}

// Close закрывает все плитки
func (s *MonitorService) Close() {
	s.grid.Close()
	s.relay.Close()
	s.frames.Purge()
}
