// Package grpcweb lets browsers reach the booking hub over HTTP/1.1 using the
// gRPC-Web framing.
package grpcweb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"barber-booking-api/internal/middleware"
)

const (
	frameData    byte = 0x00
	frameTrailer byte = 0x80
	maxBody           = 1 << 20
)

// Bridge translates gRPC-Web requests into native gRPC calls.
type Bridge struct {
	cc      grpc.ClientConnInterface
	closer  io.Closer
	streams map[string]bool
	origins map[string]bool
	log     *zap.Logger
}

type Options struct {
	// StreamMethods are full method names answered as server streams.
	StreamMethods []string
	// AllowedOrigins limits CORS; empty reflects any origin.
	AllowedOrigins []string
}

// New dials the gRPC server at addr (e.g. "localhost:50051").
func New(addr string, log *zap.Logger, opts Options) (*Bridge, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpcweb dial: %w", err)
	}
	b := FromConn(conn, log, opts)
	b.closer = conn
	return b, nil
}

// FromConn builds a bridge over an existing connection. Close leaves cc open.
func FromConn(cc grpc.ClientConnInterface, log *zap.Logger, opts Options) *Bridge {
	b := &Bridge{
		cc:      cc,
		streams: make(map[string]bool, len(opts.StreamMethods)),
		origins: make(map[string]bool, len(opts.AllowedOrigins)),
		log:     log,
	}
	for _, m := range opts.StreamMethods {
		b.streams[m] = true
	}
	for _, o := range opts.AllowedOrigins {
		b.origins[o] = true
	}
	return b
}

func (b *Bridge) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.cors(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc-web") {
		http.Error(w, "not grpc-web", http.StatusUnsupportedMediaType)
		return
	}

	b.log.Debug("grpc-web call", zap.String("method", r.URL.Path))
	payload, err := readFrame(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, codes.InvalidArgument, err.Error())
		return
	}

	md := metadata.MD{}
	if vals := r.Header.Values("Authorization"); len(vals) > 0 {
		md.Set("authorization", vals...)
	}
	md.Set(middleware.ForwardedForKey, clientAddr(r.RemoteAddr))
	ctx := metadata.NewOutgoingContext(r.Context(), md)

	if b.streams[r.URL.Path] {
		b.stream(ctx, w, r.URL.Path, payload)
		return
	}

	resp := &rawMsg{}
	err = b.cc.Invoke(ctx, r.URL.Path, &rawMsg{data: payload}, resp, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		st := status.Convert(err)
		b.log.Warn("grpc-web call failed",
			zap.String("method", r.URL.Path),
			zap.Stringer("code", st.Code()),
			zap.String("message", st.Message()))
		writeError(w, st.Code(), st.Message())
		return
	}
	writeSuccess(w, resp.data)
}

// stream relays a server-streaming call, flushing one data frame per message
// until the server ends the stream or the browser goes away.
func (b *Bridge) stream(ctx context.Context, w http.ResponseWriter, method string, payload []byte) {
	desc := &grpc.StreamDesc{StreamName: method, ServerStreams: true}
	cs, err := b.cc.NewStream(ctx, desc, method, grpc.ForceCodec(rawCodec{}))
	if err == nil {
		err = cs.SendMsg(&rawMsg{data: payload})
	}
	if err == nil {
		err = cs.CloseSend()
	}
	if err != nil {
		st := status.Convert(err)
		writeError(w, st.Code(), st.Message())
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/grpc-web+proto")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}
	for {
		m := &rawMsg{}
		err := cs.RecvMsg(m)
		if errors.Is(err, io.EOF) {
			w.Write(trailerFrame(codes.OK, ""))
			return
		}
		if err != nil {
			st := status.Convert(err)
			if st.Code() != codes.Canceled {
				b.log.Warn("grpc-web stream ended", zap.String("method", method), zap.Error(err))
			}
			w.Write(trailerFrame(st.Code(), st.Message()))
			return
		}
		if _, err := w.Write(frame(frameData, m.data)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (b *Bridge) cors(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	switch {
	case origin == "":
		origin = "*"
	case len(b.origins) > 0 && !b.origins[origin]:
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers",
		"Content-Type, X-Grpc-Web, X-User-Agent, Authorization, x-grpc-web")
	w.Header().Set("Access-Control-Expose-Headers",
		"Grpc-Status, Grpc-Message, Grpc-Status-Details-Bin, grpc-status, grpc-message")
	w.Header().Set("Access-Control-Max-Age", "86400")
}

// readFrame returns the message of a single grpc-web data frame:
// 1-byte flag, 4-byte big-endian length, then the message.
func readFrame(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.New("read body failed")
	}
	if len(body) < 5 {
		return nil, errors.New("body too short")
	}
	n := binary.BigEndian.Uint32(body[1:5])
	if int(n)+5 > len(body) {
		return nil, errors.New("incomplete frame")
	}
	return body[5 : 5+n], nil
}

// clientAddr drops the port; RemoteAddr is already the real client after
// chi's RealIP.
func clientAddr(remote string) string {
	if h, _, err := net.SplitHostPort(remote); err == nil {
		return h
	}
	return remote
}

// rawMsg wraps raw protobuf bytes.
type rawMsg struct{ data []byte }

// rawCodec passes bytes through without marshal/unmarshal.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	return v.(*rawMsg).data, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	m := v.(*rawMsg)
	m.data = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string { return "proto" }

func frame(flag byte, data []byte) []byte {
	f := make([]byte, 5+len(data))
	f[0] = flag
	binary.BigEndian.PutUint32(f[1:5], uint32(len(data)))
	copy(f[5:], data)
	return f
}

func trailerFrame(code codes.Code, msg string) []byte {
	t := fmt.Sprintf("grpc-status:%d\r\n", code)
	if msg != "" {
		t += fmt.Sprintf("grpc-message:%s\r\n", encodeMessage(msg))
	}
	return frame(frameTrailer, []byte(t))
}

// encodeMessage percent-encodes grpc-message the way grpc-go does: every
// byte outside printable ASCII, and '%' itself, becomes %XX.
func encodeMessage(msg string) string {
	var sb strings.Builder
	for i := 0; i < len(msg); i++ {
		c := msg[i]
		if c >= ' ' && c <= '~' && c != '%' {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(&sb, "%%%02X", c)
	}
	return sb.String()
}

func writeError(w http.ResponseWriter, code codes.Code, msg string) {
	w.Header().Set("Content-Type", "application/grpc-web+proto")
	w.WriteHeader(http.StatusOK)
	w.Write(trailerFrame(code, msg))
}

func writeSuccess(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/grpc-web+proto")
	w.WriteHeader(http.StatusOK)
	w.Write(frame(frameData, data))
	w.Write(trailerFrame(codes.OK, ""))
}
