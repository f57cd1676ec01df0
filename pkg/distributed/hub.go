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

package distributed

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/msgpack"
	"go.uber.org/zap"
)

const (
	opBarrier   = "barrier"
	opAllReduce = "allreduce"
)

type frame struct {
	Op      string    `codec:"op"`
	Rank    int       `codec:"rank"`
	Seq     uint64    `codec:"seq"`
	Payload []float64 `codec:"payload"`
}

func writeFrame(conn *websocket.Conn, f *frame) error {
	frameBytes, err := msgpack.Marshal(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, frameBytes)
}

func readFrame(conn *websocket.Conn) (*frame, error) {
	_, frameBytes, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	f := &frame{}
	if err := msgpack.Unmarshal(frameBytes, f); err != nil {
		return nil, err
	}
	return f, nil
}

type inbound struct {
	conn  *websocket.Conn
	frame *frame
}

// hub is the rank-0 collective server. All collective state lives in the run
// goroutine; websocket writes happen only there.
type hub struct {
	worldSize int
	log       *zap.SugaredLogger

	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	inboundCh chan inbound
	done      chan struct{}

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newHub(controlURL string, worldSize int, log *zap.SugaredLogger) (*hub, error) {
	parsed, err := url.Parse(controlURL)
	if err != nil {
		return nil, ErrorInvalidCoordinatorURL(controlURL, err)
	}

	listener, err := net.Listen("tcp", parsed.Host)
	if err != nil {
		return nil, ErrorCoordinatorUnreachable(controlURL, err)
	}

	h := &hub{
		worldSize: worldSize,
		log:       log,
		listener:  listener,
		inboundCh: make(chan inbound, worldSize),
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	mux.HandleFunc(path, h.handleConnection)
	h.server = &http.Server{Handler: mux}

	go func() {
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Errorw("coordinator hub server stopped", "error", err)
		}
	}()
	go h.run()

	return h, nil
}

func (h *hub) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorw("failed to upgrade replica connection", "error", err)
		return
	}

	h.mu.Lock()
	h.conns = append(h.conns, conn)
	h.mu.Unlock()

	go func() {
		for {
			f, err := readFrame(conn)
			if err != nil {
				return
			}
			select {
			case h.inboundCh <- inbound{conn: conn, frame: f}:
			case <-h.done:
				return
			}
		}
	}()
}

type pendingCollective struct {
	conns   []*websocket.Conn
	payload []float64
}

func (h *hub) run() {
	pending := map[string]*pendingCollective{}

	for {
		select {
		case <-h.done:
			return
		case in := <-h.inboundCh:
			key := fmt.Sprintf("%s/%d", in.frame.Op, in.frame.Seq)
			p, ok := pending[key]
			if !ok {
				p = &pendingCollective{}
				pending[key] = p
			}

			p.conns = append(p.conns, in.conn)
			if in.frame.Op == opAllReduce {
				if p.payload == nil {
					p.payload = make([]float64, len(in.frame.Payload))
				}
				for i, v := range in.frame.Payload {
					p.payload[i] += v
				}
			}

			if len(p.conns) < h.worldSize {
				continue
			}

			delete(pending, key)
			resp := frame{Op: in.frame.Op, Seq: in.frame.Seq}
			if in.frame.Op == opAllReduce {
				for i := range p.payload {
					p.payload[i] /= float64(h.worldSize)
				}
				resp.Payload = p.payload
			}

			for _, conn := range p.conns {
				if err := writeFrame(conn, &resp); err != nil {
					h.log.Errorw("failed to deliver collective result", "op", in.frame.Op, "error", err)
				}
			}
		}
	}
}

func (h *hub) shutdown() {
	close(h.done)
	h.mu.Lock()
	for _, conn := range h.conns {
		_ = conn.Close()
	}
	h.mu.Unlock()
	_ = h.server.Close()
}
