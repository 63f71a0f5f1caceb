package subsonic

import (
	"context"
	"errors"
	"time"
)

// ErrClientClosed is returned for searches issued after Close.
var ErrClientClosed = errors.New("subsonic client closed")

type searchReply struct {
	result *SearchResult
	err    error
}

type searchRequest struct {
	ctx   context.Context
	query string
	reply chan searchReply
}

// searchBatcher coalesces concurrent searches: requests arriving within
// one window are grouped, identical queries within a group share a single
// upstream call.
type searchBatcher struct {
	client   *Client
	window   time.Duration
	maxBatch int
	requests chan searchRequest
	quit     chan struct{}
	done     chan struct{}
}

func newSearchBatcher(client *Client, window time.Duration, maxBatch int) *searchBatcher {
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	if maxBatch <= 0 {
		maxBatch = 5
	}
	b := &searchBatcher{
		client:   client,
		window:   window,
		maxBatch: maxBatch,
		requests: make(chan searchRequest),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *searchBatcher) search(ctx context.Context, query string) (*SearchResult, error) {
	req := searchRequest{ctx: ctx, query: query, reply: make(chan searchReply, 1)}

	select {
	case b.requests <- req:
	case <-b.quit:
		return nil, ErrClientClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case reply := <-req.reply:
		return reply.result, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *searchBatcher) stop() {
	close(b.quit)
	<-b.done
}

func (b *searchBatcher) loop() {
	defer close(b.done)
	for {
		select {
		case <-b.quit:
			return
		case first := <-b.requests:
			batch := []searchRequest{first}
			timer := time.NewTimer(b.window)

		collect:
			for len(batch) < b.maxBatch {
				select {
				case req := <-b.requests:
					batch = append(batch, req)
				case <-timer.C:
					break collect
				case <-b.quit:
					timer.Stop()
					b.fail(batch, ErrClientClosed)
					return
				}
			}
			timer.Stop()
			b.flush(batch)
		}
	}
}

// flush executes each distinct query once and fans the result out to all
// requests that asked for it.
func (b *searchBatcher) flush(batch []searchRequest) {
	byQuery := make(map[string][]searchRequest)
	for _, req := range batch {
		byQuery[req.query] = append(byQuery[req.query], req)
	}

	for query, reqs := range byQuery {
		result, err := b.client.search3(reqs[0].ctx, query)
		for _, req := range reqs {
			req.reply <- searchReply{result: result, err: err}
		}
	}
}

func (b *searchBatcher) fail(batch []searchRequest, err error) {
	for _, req := range batch {
		req.reply <- searchReply{err: err}
	}
}
