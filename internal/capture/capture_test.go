package capture

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tcpPacket(t *testing.T, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), PSH: true, ACK: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func writeCapture(t *testing.T, packets ...[]byte) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	ts := time.Unix(1700000000, 0)
	for i, data := range packets {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return &out
}

func TestClassify(t *testing.T) {
	kind, ok := Classify([]byte("GET / HTTP/1.1\r\n"))
	assert.True(t, ok)
	assert.Equal(t, Request, kind)

	kind, ok = Classify([]byte("HTTP/1.1 200 OK\r\n"))
	assert.True(t, ok)
	assert.Equal(t, Response, kind)

	_, ok = Classify([]byte("GETX / HTTP/1.1"))
	assert.False(t, ok)
	_, ok = Classify(nil)
	assert.False(t, ok)
}

func TestReaderYieldsHTTPMessages(t *testing.T) {
	capture := writeCapture(t,
		tcpPacket(t, 40000, 80, []byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n")),
		tcpPacket(t, 40000, 80, nil),
		tcpPacket(t, 80, 40000, []byte("HTTP/1.1 200 OK\r\nServer: nginx\r\n\r\n")),
		tcpPacket(t, 40001, 22, []byte("SSH-2.0-OpenSSH_9.0\r\n")),
	)

	r, err := NewReader(capture)
	require.NoError(t, err)

	var got []Message
	require.NoError(t, r.Each(context.Background(), func(m Message) error {
		got = append(got, m)
		return nil
	}))

	require.Len(t, got, 2)
	assert.Equal(t, Request, got[0].Kind)
	assert.Equal(t, "10.0.0.1:40000", got[0].Src)
	assert.Equal(t, "10.0.0.2:80", got[0].Dst)
	assert.Contains(t, string(got[0].Payload), "Host: example.com")
	assert.Equal(t, Response, got[1].Kind)
	assert.Equal(t, 4, r.Packets)
	assert.Equal(t, 2, r.Skipped)
}

func TestEachStopsOnCallbackError(t *testing.T) {
	capture := writeCapture(t,
		tcpPacket(t, 40000, 80, []byte("GET /a HTTP/1.1\r\n\r\n")),
		tcpPacket(t, 40000, 80, []byte("GET /b HTTP/1.1\r\n\r\n")),
	)
	r, err := NewReader(capture)
	require.NoError(t, err)

	stop := errors.New("stop")
	calls := 0
	err = r.Each(context.Background(), func(Message) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestReadFile(t *testing.T) {
	capture := writeCapture(t, tcpPacket(t, 40000, 8080, []byte("POST /upload HTTP/1.1\r\n\r\n")))
	path := filepath.Join(t.TempDir(), "http.pcap")
	require.NoError(t, os.WriteFile(path, capture.Bytes(), 0o600))

	count := 0
	_, err := ReadFile(context.Background(), path, func(m Message) error {
		count++
		assert.Equal(t, "request", m.Kind.String())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewReaderRejectsGarbage(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("not a pcap file at all")))
	assert.Error(t, err)
}
