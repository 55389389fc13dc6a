// Copyright 2024 The PlotNi Authors <dev@plotni.dev>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tunnel implements the encrypted websocket relay: the first client
// frame carries the target address, every following binary frame is relayed
// between the websocket and a TCP connection to that target.
package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
)

var log = logrus.WithField("component", "tunnel")

// maxMessageSize bounds a single websocket frame
const maxMessageSize = 10 * 1024 * 1024

// relayBufferSize is the target read chunk size
const relayBufferSize = 4096

const dialTimeout = 10 * time.Second
const sendErrorTimeout = 5 * time.Second

type destination struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type errorMessage struct {
	Error string `json:"error"`
}

// Relay accepts websocket connections and relays them to the destination
// requested by the client. Every frame is encrypted with the shared key.
type Relay struct {
	key []byte

	// dial is overridable in tests
	dial func(ctx context.Context, network string, address string) (net.Conn, error)
}

func NewRelay(secret string) *Relay {
	dialer := &net.Dialer{Timeout: dialTimeout}
	return &Relay{
		key:  DeriveKey(secret),
		dial: dialer.DialContext,
	}
}

// Handle upgrades the request to a websocket and runs the relay until either
// side closes. Errors never escape the request boundary.
func (relay *Relay) Handle(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.WithField("error", err).Debug("websocket upgrade failed")
		return
	}
	ws.SetReadLimit(maxMessageSize)

	peerLog := log.WithField("peer", r.RemoteAddr)
	peerLog.Info("client connected")

	err = relay.run(r.Context(), ws, peerLog)
	if err != nil && !errors.Is(err, context.Canceled) {
		peerLog.WithField("error", err).Debug("tunnel closed with an error")
		relay.sendError(ws, err)
		_ = ws.Close(websocket.StatusInternalError, "tunnel error")
	} else {
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}
	peerLog.Info("client disconnected")
}

func (relay *Relay) run(ctx context.Context, ws *websocket.Conn, peerLog *logrus.Entry) error {
	dest, err := relay.receiveDestination(ctx, ws)
	if err != nil {
		return err
	}

	address := net.JoinHostPort(dest.Host, strconv.Itoa(dest.Port))
	conn, err := relay.dial(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("unable to reach [%s]: %w", address, err)
	}

	acknowledgment, err := Encrypt(relay.key, []byte("OK"))
	if err != nil {
		conn.Close()
		return err
	}
	if err := ws.Write(ctx, websocket.MessageBinary, acknowledgment); err != nil {
		conn.Close()
		return err
	}

	peerLog.WithField("target", address).Info("tunnel open")

	group, ctx := errgroup.WithContext(ctx)

	// Unblocks the target reader when the other goroutines are done
	group.Go(func() error {
		<-ctx.Done()
		conn.Close()
		return nil
	})

	// client -> target
	group.Go(func() error {
		for {
			msgType, frame, err := ws.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return context.Canceled
				}
				return err
			}
			if msgType != websocket.MessageBinary {
				continue
			}
			plaintext, err := Decrypt(relay.key, frame)
			if err != nil {
				return err
			}
			if _, err := conn.Write(plaintext); err != nil {
				return err
			}
		}
	})

	// target -> client
	group.Go(func() error {
		buffer := make([]byte, relayBufferSize)
		for {
			read, err := conn.Read(buffer)
			if read > 0 {
				frame, encryptErr := Encrypt(relay.key, buffer[:read])
				if encryptErr != nil {
					return encryptErr
				}
				if writeErr := ws.Write(ctx, websocket.MessageBinary, frame); writeErr != nil {
					return writeErr
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return context.Canceled
				}
				return err
			}
		}
	})

	return group.Wait()
}

func (relay *Relay) receiveDestination(ctx context.Context, ws *websocket.Conn) (destination, error) {
	msgType, frame, err := ws.Read(ctx)
	if err != nil {
		return destination{}, err
	}
	if msgType != websocket.MessageBinary {
		return destination{}, errors.New("expecting a binary destination frame")
	}

	plaintext, err := Decrypt(relay.key, frame)
	if err != nil {
		return destination{}, fmt.Errorf("unable to decrypt the destination frame: %w", err)
	}

	dest := destination{}
	if err := json.Unmarshal(plaintext, &dest); err != nil {
		return destination{}, fmt.Errorf("invalid destination frame: %w", err)
	}
	if dest.Host == "" || dest.Port <= 0 || dest.Port > 65535 {
		return destination{}, fmt.Errorf("invalid destination [%s:%d]", dest.Host, dest.Port)
	}
	return dest, nil
}

func (relay *Relay) sendError(ws *websocket.Conn, tunnelErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), sendErrorTimeout)
	defer cancel()

	serialized, err := json.Marshal(errorMessage{Error: tunnelErr.Error()})
	if err != nil {
		return
	}
	frame, err := Encrypt(relay.key, serialized)
	if err != nil {
		return
	}
	_ = ws.Write(ctx, websocket.MessageBinary, frame)
}
