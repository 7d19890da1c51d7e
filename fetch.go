package scouter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// drainRemote should be called with a lock. It takes up to maxBatchSize ids
// off the front of the remote queue and marks them as in flight.
func (s *Scouter) drainRemote() []ID {
	n := min(len(s.remoteQueue), s.maxBatchSize)
	batch := make([]ID, n)
	copy(batch, s.remoteQueue[:n])
	s.remoteQueue = s.remoteQueue[n:]
	if len(s.remoteQueue) == 0 {
		s.remoteQueue = nil
	}

	for _, id := range batch {
		delete(s.remoteQueued, id)
		if j, ok := s.pending[id]; ok {
			j.inFlight = true
		}
	}
	return batch
}

// processRemote performs one remote call for the front of the queue and
// schedules the next one. An empty queue puts the stage back to idle.
func (s *Scouter) processRemote(t *timer) {
	s.mu.Lock()
	if s.remoteTimer != t {
		s.mu.Unlock()
		return
	}
	s.remoteTimer = nil

	batch := s.drainRemote()
	if len(batch) == 0 {
		s.mu.Unlock()
		s.log.Debug("scouter: remote queue empty, going idle")
		return
	}
	s.sending = true
	s.mu.Unlock()

	log := s.log.WithFields(logrus.Fields{
		"batch_id":   uuid.NewString(),
		"batch_size": len(batch),
	})
	log.WithField("ids", batch).Debug("scouter: calling remote service")

	resp, err := s.query(batch)
	s.reportRemoteCall(len(batch))

	if err == nil && !resp.Blank {
		results := make([]Result, 0, len(batch))
		for _, id := range batch {
			results = append(results, resultFor(resp, id))
		}
		if updateErr := s.store.Update(s.ctx, results); updateErr != nil {
			log.WithError(updateErr).Warn("scouter: failed to write results to the cache")
			s.reportCacheUnavailable()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sending = false

	delay := s.paced(s.nextDelay(resp, err))
	s.reportNextDelay(delay)
	if !s.closed {
		s.remoteTimer = s.arm(delay, s.processRemote)
	}

	switch {
	case err != nil:
		log.WithError(err).Error("scouter: remote call failed, rejecting batch")
		s.reportRemoteError()
		for _, id := range batch {
			s.reject(id, err)
		}
	case resp.Blank:
		log.Warn("scouter: remote service returned an empty response, requeueing batch")
		s.reportRemoteBlank()
		s.requeue(batch)
	default:
		for _, id := range batch {
			s.resolve(id, resultFor(resp, id))
		}
		log.WithField("delay", delay).Debug("scouter: remote batch resolved")
	}
}

// query performs the remote call. A panicking client fails the batch
// instead of leaving its ids in flight forever.
func (s *Scouter) query(batch []ID) (resp QueryResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scouter: remote call panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.requestTimeout)
	defer cancel()
	return s.client.Query(ctx, s.keys.APIKey(), batch)
}

// nextDelay picks the pause before the next remote call from the outcome
// of the current one.
func (s *Scouter) nextDelay(resp QueryResponse, err error) time.Duration {
	now := s.clock.Now()
	if err != nil {
		if limits := LimitsFromError(err); limits != nil {
			return CalculateNextDelay(*limits, now, s.initialDelay, s.defaultDelay)
		}
		return s.defaultDelay
	}

	if resp.Blank {
		// A blank response says nothing about the budget unless it's spent.
		if resp.Limits != nil && resp.Limits.Remaining <= 0 {
			return max(s.blankRetryDelay, CalculateNextDelay(*resp.Limits, now, s.initialDelay, s.defaultDelay))
		}
		return s.blankRetryDelay
	}

	if resp.Limits != nil {
		return CalculateNextDelay(*resp.Limits, now, s.initialDelay, s.defaultDelay)
	}
	return s.defaultDelay
}

// requeue should be called with a lock. It puts a blank batch back at the
// front of the remote queue, in its original order. Ids that have used up
// their attempts are rejected instead.
func (s *Scouter) requeue(batch []ID) {
	front := make([]ID, 0, len(batch))
	for _, id := range batch {
		j, ok := s.pending[id]
		if !ok {
			continue
		}
		j.inFlight = false
		j.attempts++
		if j.attempts > s.maxAttempts {
			s.log.WithField("id", id).Warn("scouter: giving up after repeated empty responses")
			s.reportAttemptsExhausted()
			s.reject(id, tooManyAttempts(id))
			continue
		}
		if _, queued := s.remoteQueued[id]; queued {
			continue
		}
		front = append(front, id)
		s.remoteQueued[id] = struct{}{}
	}
	s.remoteQueue = append(front, s.remoteQueue...)
}

// resultFor treats an id the response left out as NoData.
func resultFor(resp QueryResponse, id ID) Result {
	if res, ok := resp.Results[id]; ok && res != nil {
		return res
	}
	return NoData{PlayerID: id}
}
