// Package capture reads HTTP messages out of offline packet captures.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

type Kind int

const (
	Request Kind = iota
	Response
)

func (k Kind) String() string {
	if k == Response {
		return "response"
	}
	return "request"
}

// Message is a TCP payload that opens an HTTP request or response. Segments
// are not reassembled, so a message larger than one segment is truncated.
type Message struct {
	Kind      Kind
	Timestamp time.Time
	Src       string
	Dst       string
	Payload   []byte
}

var methods = [][]byte{
	[]byte("GET "), []byte("POST "), []byte("HEAD "), []byte("PUT "),
	[]byte("DELETE "), []byte("OPTIONS "), []byte("PATCH "), []byte("TRACE "),
	[]byte("CONNECT "),
}

var statusPrefix = []byte("HTTP/1.")

// Classify reports whether payload starts an HTTP message and which kind.
func Classify(payload []byte) (Kind, bool) {
	if bytes.HasPrefix(payload, statusPrefix) {
		return Response, true
	}
	for _, m := range methods {
		if bytes.HasPrefix(payload, m) {
			return Request, true
		}
	}
	return Request, false
}

type Reader struct {
	source *gopacket.PacketSource

	Packets int
	Skipped int
}

func NewReader(r io.Reader) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}
	source := gopacket.NewPacketSource(pr, pr.LinkType())
	source.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	return &Reader{source: source}, nil
}

// Each calls fn for every HTTP message in the capture, in capture order.
// Iteration stops at the end of the file, on ctx cancellation or on the
// first error fn returns.
func (r *Reader) Each(ctx context.Context, fn func(Message) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		packet, err := r.source.NextPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read packet: %w", err)
		}
		r.Packets++

		msg, ok := message(packet)
		if !ok {
			r.Skipped++
			continue
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

func message(packet gopacket.Packet) (Message, bool) {
	if packet.ErrorLayer() != nil {
		return Message{}, false
	}
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return Message{}, false
	}
	tcp := tcpLayer.(*layers.TCP)
	kind, ok := Classify(tcp.Payload)
	if !ok {
		return Message{}, false
	}

	msg := Message{
		Kind:      kind,
		Timestamp: packet.Metadata().Timestamp,
		Payload:   append([]byte(nil), tcp.Payload...),
	}
	if nl := packet.NetworkLayer(); nl != nil {
		src, dst := nl.NetworkFlow().Endpoints()
		msg.Src = net.JoinHostPort(src.String(), fmt.Sprint(int(tcp.SrcPort)))
		msg.Dst = net.JoinHostPort(dst.String(), fmt.Sprint(int(tcp.DstPort)))
	}
	return msg, true
}

// ReadFile calls fn for every HTTP message in the pcap file at path.
func ReadFile(ctx context.Context, path string, fn func(Message) error) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := NewReader(f)
	if err != nil {
		return nil, err
	}
	return r, r.Each(ctx, fn)
}
