package pipeline

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bsefeed/internal/contractmaster"
	"bsefeed/internal/receiver"
	"bsefeed/internal/sink"
	"bsefeed/logger"
)

// loopbackSource is a datagramSource backed by a real loopback UDP socket,
// standing in for *receiver.Receiver the same way internal/receiver's own
// tests avoid joining a real multicast group.
type loopbackSource struct {
	conn    *net.UDPConn
	timeout time.Duration
}

func (s *loopbackSource) NextDatagram(ctx context.Context) (receiver.Datagram, error) {
	if err := ctx.Err(); err != nil {
		return receiver.Datagram{}, err
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return receiver.Datagram{}, err
	}
	buf := make([]byte, 65536)
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return receiver.Datagram{}, receiver.ErrTimeout
		}
		return receiver.Datagram{}, err
	}
	return receiver.Datagram{Payload: buf[:n], Source: addr}, nil
}

func (s *loopbackSource) Close() error { return s.conn.Close() }

func writeTempMaster(t *testing.T, content string) *contractmaster.ContractMaster {
	t.Helper()
	f, err := os.CreateTemp("", "contractmaster-*.json")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	cm, err := contractmaster.Load(f.Name())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cm
}

func loopbackSupervisor(t *testing.T) (*Supervisor, *net.UDPAddr, string) {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	jsonDir := t.TempDir()
	csvDir := t.TempDir()
	s := sink.New(jsonDir, csvDir, logger.GetLogger(), nil)

	cm := writeTempMaster(t, `{"873870": {"symbol": "SENSEX", "expiry": "27-NOV-2025", "option_type": "CE", "strike": 84100, "instrument_type": "OPTION"}}`)

	src := &loopbackSource{conn: conn, timeout: 50 * time.Millisecond}
	sp := newSupervisor(src, cm, s, logger.GetLogger())
	return sp, conn.LocalAddr().(*net.UDPAddr), jsonDir
}

// makeCanonicalPayload builds a minimal valid 564-byte canonical datagram
// carrying one non-empty record at the given token/ltp, mirroring
// internal/wire's own test helper.
func makeCanonicalPayload(token uint32, ltpPaise int32) []byte {
	payload := make([]byte, 564)
	binary.LittleEndian.PutUint16(payload[4:6], 564)
	binary.LittleEndian.PutUint16(payload[8:10], 2020)
	binary.LittleEndian.PutUint16(payload[20:22], 9)
	binary.LittleEndian.PutUint16(payload[22:24], 15)
	binary.LittleEndian.PutUint16(payload[24:26], 30)

	block := payload[36 : 36+264]
	binary.LittleEndian.PutUint32(block[0:4], token)
	binary.LittleEndian.PutUint32(block[36:40], uint32(ltpPaise))
	return payload
}

func indexOfNewline(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return len(b)
}

func TestSupervisorProcessesDatagramEndToEnd(t *testing.T) {
	sp, addr, jsonDir := loopbackSupervisor(t)
	defer sp.Close()

	sender, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sender.Close()

	if _, err := sender.Write(makeCanonicalPayload(873870, 8410050)); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sp.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return within timeout")
	}

	stats := sp.sink.Stats()
	if stats.Saved == 0 {
		t.Fatalf("expected at least one saved quote")
	}

	entries, err := os.ReadDir(jsonDir)
	if err != nil {
		t.Fatalf("read json dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one daily json file, got %d", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(jsonDir, entries[0].Name()))
	if err != nil {
		t.Fatalf("read json file: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(data[:indexOfNewline(data)], &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if rec["symbol"] != "SENSEX" {
		t.Errorf("unexpected symbol: %v", rec["symbol"])
	}
}

func TestProcessDatagramDropsMalformedHeader(t *testing.T) {
	sp, _, _ := loopbackSupervisor(t)
	defer sp.Close()

	sp.processDatagram([]byte{0x01, 0x02, 0x03})

	if sp.wireStats.DatagramsObserved != 1 {
		t.Errorf("expected one observed datagram, got %d", sp.wireStats.DatagramsObserved)
	}
	if sp.wireStats.HeadersAccepted != 0 {
		t.Errorf("expected zero accepted headers, got %d", sp.wireStats.HeadersAccepted)
	}
}

func TestProcessDatagramDropsInvalidLTP(t *testing.T) {
	sp, _, _ := loopbackSupervisor(t)
	defer sp.Close()

	sp.processDatagram(makeCanonicalPayload(873870, 0))

	stats := sp.sink.Stats()
	if stats.Saved != 0 {
		t.Errorf("expected invalid ltp record to be dropped, got Saved=%d", stats.Saved)
	}
}

func TestProcessDatagramEmitsUnknownTokenInsteadOfDropping(t *testing.T) {
	sp, _, jsonDir := loopbackSupervisor(t)
	defer sp.Close()

	sp.processDatagram(makeCanonicalPayload(999999, 100))

	stats := sp.sink.Stats()
	if stats.Saved != 1 {
		t.Fatalf("expected unknown-token quote to still be saved, got Saved=%d", stats.Saved)
	}

	entries, err := os.ReadDir(jsonDir)
	if err != nil {
		t.Fatalf("read json dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one daily json file, got %d", len(entries))
	}
}

func TestReportStatsDoesNotPanic(t *testing.T) {
	sp, _, _ := loopbackSupervisor(t)
	defer sp.Close()

	sp.processDatagram(makeCanonicalPayload(873870, 100))
	sp.ReportStats()
}
