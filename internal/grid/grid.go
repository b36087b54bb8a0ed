package grid

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"cv-console/internal/metrics"
	"cv-console/internal/stream"
	"cv-console/internal/types"
)

var (
	ErrInvalidLayout = errors.New("layout must be 1, 4 or 9")
	ErrTileNotFound  = errors.New("tile not found on current page")
)

// DefaultLayout раскладка по умолчанию (2x2)
const DefaultLayout = 4

// ClientFactory создает нового клиента потока для камеры
type ClientFactory func(cam types.Camera) *stream.Client

// EndpointFunc определяет адрес потока камеры. Пустая строка означает
// отсутствие живого потока.
type EndpointFunc func(cam types.Camera) string

// TileView представление одного слота страницы
type TileView struct {
	Slot      int          `json:"slot"`
	CameraID  string       `json:"camera_id,omitempty"`
	Name      string       `json:"name,omitempty"`
	Type      string       `json:"type,omitempty"`
	Endpoint  string       `json:"endpoint,omitempty"`
	State     stream.State `json:"state"`
	Overlay   string       `json:"overlay"`
	FPS       *float64     `json:"fps,omitempty"`
	FrameSeq  uint64       `json:"frame_seq"`
	LastError string       `json:"last_error,omitempty"`
	Empty     bool         `json:"empty"`
}

// Page снимок текущей страницы
type Page struct {
	Layout     int        `json:"layout"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	Cameras    int        `json:"cameras"`
	Tiles      []TileView `json:"tiles"`
}

type tile struct {
	camera   types.Camera
	endpoint string
	client   *stream.Client
}

// Grid раскладывает камеры по страницам и держит по клиенту потока на
// каждую видимую камеру. Клиенты не переиспользуются между камерами.
//
// Обработчики клиентов не должны обращаться к Grid: закрытие клиента
// происходит под мьютексом сетки.
type Grid struct {
	logger   *zap.Logger
	factory  ClientFactory
	endpoint EndpointFunc
	metrics  *metrics.Metrics

	mu      sync.Mutex
	cameras []types.Camera
	layout  int
	page    int
	tiles   map[string]*tile
	closed  bool
}

// New создает пустую сетку
func New(logger *zap.Logger, factory ClientFactory, endpoint EndpointFunc, layout int, m *metrics.Metrics) (*Grid, error) {
	if !ValidLayout(layout) {
		return nil, ErrInvalidLayout
	}

	return &Grid{
		logger:   logger,
		factory:  factory,
		endpoint: endpoint,
		metrics:  m,
		layout:   layout,
		tiles:    make(map[string]*tile),
	}, nil
}

// ValidLayout проверяет число плиток на странице
func ValidLayout(n int) bool {
	return n == 1 || n == 4 || n == 9
}

// SetCameras заменяет список камер и пересобирает плитки
func (g *Grid) SetCameras(cams []types.Camera) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cameras = append([]types.Camera(nil), cams...)
	if total := g.totalPagesLocked(); g.page >= total {
		g.page = max(total-1, 0)
	}

	g.logger.Info("Camera list updated",
		zap.Int("cameras", len(cams)),
		zap.Int("page", g.page),
	)
	g.reconcileLocked()
}

// Cameras возвращает копию списка камер
func (g *Grid) Cameras() []types.Camera {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.Camera(nil), g.cameras...)
}

// SetLayout меняет раскладку и возвращает на первую страницу
func (g *Grid) SetLayout(n int) error {
	if !ValidLayout(n) {
		return ErrInvalidLayout
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.layout = n
	g.page = 0
	g.reconcileLocked()
	return nil
}

func (g *Grid) Layout() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.layout
}

func (g *Grid) CurrentPage() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.page
}

// TotalPages ceil(cameras/layout)
func (g *Grid) TotalPages() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.totalPagesLocked()
}

// NextPage переходит на следующую страницу с переходом по кругу
func (g *Grid) NextPage() int {
	return g.turn(1)
}

// PrevPage переходит на предыдущую страницу с переходом по кругу
func (g *Grid) PrevPage() int {
	return g.turn(-1)
}

func (g *Grid) turn(delta int) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := g.totalPagesLocked()
	if total == 0 {
		return g.page
	}

	g.page = ((g.page+delta)%total + total) % total
	g.reconcileLocked()
	return g.page
}

// Client возвращает клиента видимой камеры
func (g *Grid) Client(cameraID string) (*stream.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tiles[cameraID]
	if !ok {
		return nil, ErrTileNotFound
	}
	return t.client, nil
}

// Tile возвращает представление плитки видимой камеры
func (g *Grid) Tile(cameraID string) (TileView, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, cam := range g.visibleLocked() {
		if TileKey(cam) == cameraID {
			return g.viewLocked(i, cam), nil
		}
	}
	return TileView{}, ErrTileNotFound
}

// Reconnect перезапускает поток видимой камеры
func (g *Grid) Reconnect(cameraID string) error {
	client, err := g.Client(cameraID)
	if err != nil {
		return err
	}
	return client.Reconnect()
}

// Snapshot возвращает текущую страницу. Пустые слоты последней
// страницы отмечаются как No Signal.
func (g *Grid) Snapshot() Page {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := Page{
		Layout:     g.layout,
		Page:       g.page,
		TotalPages: g.totalPagesLocked(),
		Cameras:    len(g.cameras),
		Tiles:      make([]TileView, 0, g.layout),
	}

	visible := g.visibleLocked()
	for slot := 0; slot < g.layout; slot++ {
		if slot < len(visible) {
			p.Tiles = append(p.Tiles, g.viewLocked(slot, visible[slot]))
			continue
		}
		p.Tiles = append(p.Tiles, TileView{
			Slot:    slot,
			State:   stream.StateInactive,
			Overlay: stream.StateInactive.Overlay(),
			Empty:   true,
		})
	}

	return p
}

// Close закрывает всех клиентов
func (g *Grid) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	for key, t := range g.tiles {
		_ = t.client.Close()
		delete(g.tiles, key)
	}
	g.metrics.SetTilesActive(0)

	g.logger.Info("Grid closed")
}

func (g *Grid) totalPagesLocked() int {
	return (len(g.cameras) + g.layout - 1) / g.layout
}

func (g *Grid) visibleLocked() []types.Camera {
	start := g.page * g.layout
	if start >= len(g.cameras) {
		return nil
	}
	end := min(start+g.layout, len(g.cameras))
	return g.cameras[start:end]
}

func (g *Grid) viewLocked(slot int, cam types.Camera) TileView {
	v := TileView{
		Slot:     slot,
		CameraID: cam.ID,
		Name:     cam.Name,
		Type:     cam.Type,
		State:    stream.StateInactive,
	}

	if t, ok := g.tiles[TileKey(cam)]; ok {
		snap := t.client.Snapshot()
		v.Endpoint = snap.Endpoint
		v.State = snap.State
		v.FPS = snap.FPS
		v.LastError = snap.LastError
		if snap.Frame != nil {
			v.FrameSeq = snap.Frame.Seq
		}
	}

	v.Overlay = v.State.Overlay()
	return v
}

// reconcileLocked приводит набор клиентов к видимым камерам: ушедшие
// закрываются, новые получают свежего клиента, оставшиеся сохраняют его.
func (g *Grid) reconcileLocked() {
	if g.closed {
		return
	}

	next := make(map[string]*tile)
	for _, cam := range g.visibleLocked() {
		key := TileKey(cam)
		if key == "" {
			continue
		}
		if _, dup := next[key]; dup {
			g.logger.Warn("Duplicate camera on page", zap.String("camera_id", key))
			continue
		}

		endpoint := g.endpoint(cam)
		if endpoint == "" {
			continue
		}

		if t, ok := g.tiles[key]; ok {
			delete(g.tiles, key)
			t.camera = cam
			if t.endpoint != endpoint {
				t.endpoint = endpoint
				_ = t.client.SetEndpoint(endpoint)
			}
			next[key] = t
			continue
		}

		client := g.factory(cam)
		_ = client.SetEndpoint(endpoint)
		next[key] = &tile{camera: cam, endpoint: endpoint, client: client}

		g.logger.Debug("Tile mounted",
			zap.String("camera_id", key),
			zap.String("endpoint", endpoint),
		)
	}

	for key, t := range g.tiles {
		_ = t.client.Close()
		g.logger.Debug("Tile unmounted", zap.String("camera_id", key))
	}

	g.tiles = next
	g.metrics.SetTilesActive(len(next))
}

// TileKey идентичность камеры: id, иначе ws_url
func TileKey(cam types.Camera) string {
	if cam.ID != "" {
		return cam.ID
	}
	return cam.WSURL
}
