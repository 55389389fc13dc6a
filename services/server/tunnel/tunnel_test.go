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

package tunnel

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

const testSecret = "a-test-secret"

func startEchoServer(t *testing.T) *net.TCPAddr {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = io.Copy(conn, conn)
			}()
		}
	}()

	return listener.Addr().(*net.TCPAddr)
}

func dialRelay(t *testing.T, ctx context.Context, relay *Relay) *websocket.Conn {
	httpServer := httptest.NewServer(http.HandlerFunc(relay.Handle))
	t.Cleanup(httpServer.Close)

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	ws, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	return ws
}

func sendEncrypted(t *testing.T, ctx context.Context, ws *websocket.Conn, key []byte, payload []byte) {
	frame, err := Encrypt(key, payload)
	require.NoError(t, err)
	require.NoError(t, ws.Write(ctx, websocket.MessageBinary, frame))
}

func readEncrypted(t *testing.T, ctx context.Context, ws *websocket.Conn, key []byte) []byte {
	msgType, frame, err := ws.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageBinary, msgType)

	payload, err := Decrypt(key, frame)
	require.NoError(t, err)
	return payload
}

func TestRelayEcho(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	echoAddr := startEchoServer(t)
	relay := NewRelay(testSecret)
	key := DeriveKey(testSecret)

	ws := dialRelay(t, ctx, relay)
	defer ws.Close(websocket.StatusNormalClosure, "")

	destFrame, err := json.Marshal(destination{Host: "127.0.0.1", Port: echoAddr.Port})
	require.NoError(t, err)
	sendEncrypted(t, ctx, ws, key, destFrame)

	assert.Equal(t, []byte("OK"), readEncrypted(t, ctx, ws, key))

	payload := []byte("hello through the tunnel")
	sendEncrypted(t, ctx, ws, key, payload)
	assert.Equal(t, payload, readEncrypted(t, ctx, ws, key))

	// The tunnel stays open for more traffic
	payload = []byte("and again")
	sendEncrypted(t, ctx, ws, key, payload)
	assert.Equal(t, payload, readEncrypted(t, ctx, ws, key))
}

func TestRelayUnreachableTarget(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Grab a port that is closed again by the time the relay dials it
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	relay := NewRelay(testSecret)
	key := DeriveKey(testSecret)

	ws := dialRelay(t, ctx, relay)
	defer ws.Close(websocket.StatusNormalClosure, "")

	destFrame, err := json.Marshal(destination{Host: "127.0.0.1", Port: closedPort})
	require.NoError(t, err)
	sendEncrypted(t, ctx, ws, key, destFrame)

	reported := errorMessage{}
	require.NoError(t, json.Unmarshal(readEncrypted(t, ctx, ws, key), &reported))
	assert.NotEmpty(t, reported.Error)
}

func TestRelayRejectsUndecryptableDestination(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	relay := NewRelay(testSecret)
	key := DeriveKey(testSecret)

	ws := dialRelay(t, ctx, relay)
	defer ws.Close(websocket.StatusNormalClosure, "")

	// Not a valid cipher frame for the shared key
	require.NoError(t, ws.Write(ctx, websocket.MessageBinary, []byte("garbage")))

	reported := errorMessage{}
	require.NoError(t, json.Unmarshal(readEncrypted(t, ctx, ws, key), &reported))
	assert.NotEmpty(t, reported.Error)
}

func TestRelayRejectsInvalidDestination(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	relay := NewRelay(testSecret)
	key := DeriveKey(testSecret)

	ws := dialRelay(t, ctx, relay)
	defer ws.Close(websocket.StatusNormalClosure, "")

	destFrame, err := json.Marshal(destination{Host: "", Port: -1})
	require.NoError(t, err)
	sendEncrypted(t, ctx, ws, key, destFrame)

	reported := errorMessage{}
	require.NoError(t, json.Unmarshal(readEncrypted(t, ctx, ws, key), &reported))
	assert.NotEmpty(t, reported.Error)
}
