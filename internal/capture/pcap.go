// Package capture replays LAYER_DATA envelopes mirrored to UDP from a pcap
// file.
package capture

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Packet is one UDP datagram addressed to the capture port.
type Packet struct {
	Timestamp time.Time
	SrcPort   int
	Payload   []byte
}

type Stats struct {
	Packets int
	UDP     int
	Matched int
	Empty   int
}

// ReadPCAP walks a classic pcap stream and calls fn for every non-empty UDP
// payload sent to port. port <= 0 accepts every port. An error from fn stops
// the walk and is returned.
func ReadPCAP(ctx context.Context, r io.Reader, port int, fn func(Packet) error) (Stats, error) {
	var st Stats
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return st, fmt.Errorf("pcap header: %w", err)
	}
	src := gopacket.NewPacketSource(pr, pr.LinkType())

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		packet, err := src.NextPacket()
		if err == io.EOF {
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("pcap packet %d: %w", st.Packets+1, err)
		}
		st.Packets++

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			continue
		}
		st.UDP++
		if port > 0 && int(udp.DstPort) != port {
			continue
		}
		if len(udp.Payload) == 0 {
			st.Empty++
			continue
		}
		st.Matched++
		if err := fn(Packet{
			Timestamp: packet.Metadata().Timestamp,
			SrcPort:   int(udp.SrcPort),
			Payload:   udp.Payload,
		}); err != nil {
			return st, err
		}
	}
}
