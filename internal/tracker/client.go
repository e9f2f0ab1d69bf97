package tracker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
	"github.com/sirupsen/logrus"
)

var errNoOutcome = errors.New("session ended without an outcome")

// Client runs sessions against many trackers over one shared socket.
type Client struct {
	cfg        Config
	dispatcher *Dispatcher
	logger     *logrus.Logger

	mu  sync.Mutex
	rnd RandomSource
}

// AnnounceReport is the result of announcing to one tracker.
type AnnounceReport struct {
	TrackerURL string
	Result     *AnnounceResult
	Err        error
}

// NewClient starts dispatching datagrams from tr. A nil rnd seeds one from
// the clock.
func NewClient(cfg Config, tr Transport, rnd RandomSource, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	d := NewDispatcher(tr, log)
	d.Start()

	return &Client{
		cfg:        cfg,
		dispatcher: d,
		logger:     log,
		rnd:        rnd,
	}
}

func (c *Client) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// NewSession returns an idle session with its own random stream.
func (c *Client) NewSession() *Session {
	return NewSession(c.cfg, c.dispatcher, c.sessionRand(), c.logger)
}

func (c *Client) sessionRand() RandomSource {
	c.mu.Lock()
	seed := int64(c.rnd.Uint32())<<32 | int64(c.rnd.Uint32())
	c.mu.Unlock()
	return rand.New(rand.NewSource(seed))
}

func (c *Client) Announce(ctx context.Context, trackerURL string, req AnnounceRequest) (*AnnounceResult, error) {
	for o := range c.NewSession().Start(ctx, trackerURL, req) {
		switch o.Kind {
		case OutcomeAnnounced:
			return o.Announce, nil
		case OutcomeFailed:
			return nil, o.Err
		}
	}
	return nil, errNoOutcome
}

func (c *Client) Scrape(ctx context.Context, trackerURL string, infoHashes []protocol.InfoHash) ([]protocol.ScrapeFile, error) {
	for o := range c.NewSession().StartScrape(ctx, trackerURL, infoHashes) {
		switch o.Kind {
		case OutcomeScraped:
			return o.Scrape, nil
		case OutcomeFailed:
			return nil, o.Err
		}
	}
	return nil, errNoOutcome
}

// AnnounceAll announces to every tracker concurrently. onDone, if set, is
// called from the session's goroutine as each tracker finishes. Reports are
// returned in the order of trackerURLs.
func (c *Client) AnnounceAll(ctx context.Context, trackerURLs []string, req AnnounceRequest, onDone func(AnnounceReport)) []AnnounceReport {
	reports := make([]AnnounceReport, len(trackerURLs))

	var wg sync.WaitGroup
	for i, u := range trackerURLs {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()

			res, err := c.Announce(ctx, u, req)
			reports[i] = AnnounceReport{TrackerURL: u, Result: res, Err: err}
			if onDone != nil {
				onDone(reports[i])
			}
		}(i, u)
	}
	wg.Wait()

	return reports
}
