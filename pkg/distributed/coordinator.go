/*
Copyright 2022 The Nerfstudio Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package distributed synchronizes data-parallel training replicas. Rank 0
// hosts a hub that the replicas (rank 0 included) connect to; the only
// collectives are a setup barrier and the per-step gradient all-reduce.
package distributed

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/ignatpenshin/nerfstudio/pkg/config"
	"github.com/ignatpenshin/nerfstudio/pkg/model"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var _dialRetryInterval = 250 * time.Millisecond
var _dialTimeout = 30 * time.Second

type Coordinator struct {
	worldSize int
	localRank int
	log       *zap.SugaredLogger

	hub    *hub
	conn   *websocket.Conn
	seq    *atomic.Uint64
	closed *atomic.Bool
}

func NewCoordinator(cfg config.DistributedConfig, log *zap.SugaredLogger) (*Coordinator, error) {
	c := &Coordinator{
		worldSize: cfg.WorldSize,
		localRank: cfg.LocalRank,
		log:       log,
		seq:       atomic.NewUint64(0),
		closed:    atomic.NewBool(false),
	}

	if cfg.WorldSize <= 1 {
		return c, nil
	}

	if cfg.LocalRank == 0 {
		h, err := newHub(cfg.CoordinatorURL, cfg.WorldSize, log)
		if err != nil {
			return nil, err
		}
		c.hub = h
	}

	conn, err := dialWithRetry(cfg.CoordinatorURL)
	if err != nil {
		if c.hub != nil {
			c.hub.shutdown()
		}
		return nil, err
	}
	c.conn = conn

	return c, nil
}

func dialWithRetry(url string) (*websocket.Conn, error) {
	deadline := time.Now().Add(_dialTimeout)
	for {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrorCoordinatorUnreachable(url, err)
		}
		time.Sleep(_dialRetryInterval)
	}
}

// IsCoordinator reports whether this replica is the single designated writer
// for checkpoints and other rank-restricted side effects.
func (c *Coordinator) IsCoordinator() bool {
	return c.localRank == 0
}

func (c *Coordinator) WorldSize() int {
	return c.worldSize
}

// Wrap returns the model unchanged at world size 1. Otherwise it returns a
// wrapper whose backward pass all-reduces gradients across replicas, so every
// replica steps its optimizers with identical gradients.
func (c *Coordinator) Wrap(m model.Model, localRank int) (model.Model, error) {
	if c.worldSize <= 1 {
		return m, nil
	}

	accessor, ok := m.(model.GradientAccessor)
	if !ok {
		return nil, ErrorModelNotSynchronizable()
	}

	return &ddpModel{
		Model:       m,
		accessor:    accessor,
		coordinator: c,
	}, nil
}

// Unwrap returns the base model, so checkpoints capture base parameters
// rather than the distributed proxy.
func Unwrap(m model.Model) model.Model {
	if wrapped, ok := m.(*ddpModel); ok {
		return wrapped.Model
	}
	return m
}

// Barrier blocks until every replica has arrived. It is a no-op at world
// size 1.
func (c *Coordinator) Barrier() error {
	if c.worldSize <= 1 {
		return nil
	}
	_, err := c.collective(opBarrier, nil)
	return err
}

// AllReduce replaces grads with the elementwise mean across all replicas.
func (c *Coordinator) AllReduce(grads []float64) ([]float64, error) {
	if c.worldSize <= 1 {
		return grads, nil
	}
	return c.collective(opAllReduce, grads)
}

func (c *Coordinator) collective(op string, payload []float64) ([]float64, error) {
	seq := c.seq.Inc()

	req := frame{Op: op, Rank: c.localRank, Seq: seq, Payload: payload}
	if err := writeFrame(c.conn, &req); err != nil {
		return nil, ErrorCollectiveFailed(op, err)
	}

	resp, err := readFrame(c.conn)
	if err != nil {
		return nil, ErrorCollectiveFailed(op, err)
	}
	if resp.Op != op || resp.Seq != seq {
		return nil, ErrorCollectiveOutOfSync(op, seq, resp.Op, resp.Seq)
	}

	return resp.Payload, nil
}

func (c *Coordinator) Close() {
	if !c.closed.CAS(false, true) {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	if c.hub != nil {
		c.hub.shutdown()
	}
}

type ddpModel struct {
	model.Model
	accessor    model.GradientAccessor
	coordinator *Coordinator
}

func (d *ddpModel) Backward(aggregatedLoss float64) error {
	if err := d.Model.Backward(aggregatedLoss); err != nil {
		return err
	}

	reduced, err := d.coordinator.AllReduce(d.accessor.FlatGradients())
	if err != nil {
		return err
	}

	return d.accessor.SetFlatGradients(reduced)
}
