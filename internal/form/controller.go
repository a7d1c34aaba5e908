package form

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/example/lowpoly/internal/client"
	"github.com/example/lowpoly/internal/preview"
)

// Transport performs the rendering request.
type Transport interface {
	LowPolyImage(ctx context.Context, upload client.Upload, params client.Params) (*client.Image, error)
}

// Observer receives a snapshot after every state change.
type Observer func(State)

type subscription struct {
	id int
	fn Observer
}

// Controller owns the form state. It is safe for concurrent use. Observers
// are invoked outside the state lock, one notification at a time and in the
// order the changes were made; a snapshot superseded before delivery is
// skipped. Observers must not call methods that change the state.
type Controller struct {
	transport Transport
	previews  preview.Store
	logger    *zap.Logger

	mu        sync.Mutex
	state     State
	processed *client.Image
	// selection increments on every file selection so that a response for a
	// replaced file is not shown.
	selection int
	observers []subscription
	nextID    int
	seq       uint64

	notifyMu  sync.Mutex
	delivered uint64
}

// NewController returns a controller in its initial state.
func NewController(transport Transport, previews preview.Store, logger *zap.Logger) *Controller {
	return &Controller{
		transport: transport,
		previews:  previews,
		logger:    logger.Named("form_controller"),
		state:     defaultState(),
	}
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (c *Controller) Subscribe(fn Observer) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers = append(c.observers, subscription{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, sub := range c.observers {
				if sub.id == id {
					c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ProcessedImage returns the image behind ProcessedPreviewURL, if any.
func (c *Controller) ProcessedImage() (*client.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed, c.processed != nil
}

// SelectFile stores file, publishes its preview and clears any processed
// preview. A nil file is ignored. No request is made.
func (c *Controller) SelectFile(file *File) error {
	if file == nil {
		return nil
	}
	url, err := c.previews.Publish(file.ContentType, file.Data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	stale := []string{c.state.OriginalPreviewURL, c.state.ProcessedPreviewURL}
	c.state.SelectedFile = file
	c.state.OriginalPreviewURL = url
	c.state.ProcessedPreviewURL = ""
	c.processed = nil
	c.selection++
	c.commit(stale...)
	return nil
}

// SetNumPoints binds the number-of-points input.
func (c *Controller) SetNumPoints(n int) {
	c.mu.Lock()
	c.state.NumPoints = n
	c.commit()
}

// SetDetailLevel binds the detail-level input.
func (c *Controller) SetDetailLevel(n int) {
	c.mu.Lock()
	c.state.DetailLevel = n
	c.commit()
}

// Submit sends the selected file for rendering. Without a file it records
// MsgNoFile and returns a *ValidationError. While another submission is in
// flight it returns ErrSubmissionInFlight and changes nothing. Transport
// failures are recorded in ErrorMessage and returned.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state.SelectedFile == nil {
		c.state.ErrorMessage = MsgNoFile
		c.commit()
		return &ValidationError{Message: MsgNoFile}
	}
	if c.state.IsLoading {
		c.mu.Unlock()
		return ErrSubmissionInFlight
	}
	c.state.NumPoints, c.state.DetailLevel = ClampParams(c.state.NumPoints, c.state.DetailLevel)
	c.state.IsLoading = true
	c.state.ErrorMessage = ""
	file := c.state.SelectedFile
	params := client.Params{NumPoints: c.state.NumPoints, DetailLevel: c.state.DetailLevel}
	selection := c.selection
	c.commit()

	img, err := c.transport.LowPolyImage(ctx, client.Upload{
		Filename:    file.Name,
		ContentType: file.ContentType,
		Data:        file.Data,
	}, params)

	var url string
	if err == nil {
		contentType := img.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(img.Data)
		}
		url, err = c.previews.Publish(contentType, img.Data)
	}

	c.mu.Lock()
	c.state.IsLoading = false
	if err != nil {
		c.state.ErrorMessage = failureMessage(err)
		c.logger.Warn("submission failed", zap.Error(err))
		c.commit()
		return err
	}
	if selection != c.selection {
		c.logger.Info("discarding result for a replaced file", zap.String("file", file.Name))
		c.commit(url)
		return nil
	}
	stale := c.state.ProcessedPreviewURL
	c.state.ProcessedPreviewURL = url
	c.processed = img
	c.commit(stale)
	return nil
}

// Close releases every preview URL still held by the controller.
func (c *Controller) Close() {
	c.mu.Lock()
	urls := []string{c.state.OriginalPreviewURL, c.state.ProcessedPreviewURL}
	c.mu.Unlock()
	for _, url := range urls {
		if url != "" {
			c.previews.Release(url)
		}
	}
}

// commit must be called with c.mu held. It unlocks, releases the given
// preview URLs and notifies observers.
func (c *Controller) commit(release ...string) {
	c.seq++
	seq := c.seq
	snapshot := c.state
	observers := make([]Observer, len(c.observers))
	for i, sub := range c.observers {
		observers[i] = sub.fn
	}
	c.mu.Unlock()

	for _, url := range release {
		if url != "" {
			c.previews.Release(url)
		}
	}
	c.deliver(seq, snapshot, observers)
}

func (c *Controller) deliver(seq uint64, snapshot State, observers []Observer) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if seq <= c.delivered {
		return
	}
	c.delivered = seq
	for _, fn := range observers {
		fn(snapshot)
	}
}
