package replay

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Handler 收到一个 UDP 载荷；ts 为抓包时间戳，作为到达时间使用
type Handler func(ctx context.Context, payload []byte, ts time.Time)

// Result 回放统计
type Result struct {
	Packets int       `json:"packets"`
	UDP     int       `json:"udp"`
	Matched int       `json:"matched"`
	First   time.Time `json:"first"`
	Last    time.Time `json:"last"`
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

const pcapngMagic = 0x0A0D0D0A

// ReplayFile 打开 pcap 或 pcapng 文件并回放
func ReplayFile(ctx context.Context, path string, port int, h Handler) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return Replay(ctx, f, port, h)
}

// Replay 逐包提取发往 port 的 UDP 载荷（port 为 0 时不过滤）
// 回放是单协程顺序执行的，载荷按抓包顺序交给 h
func Replay(ctx context.Context, r io.Reader, port int, h Handler) (Result, error) {
	var res Result
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return res, fmt.Errorf("read capture header: %w", err)
	}

	var (
		src      packetReader
		linkType layers.LinkType
	)
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return res, fmt.Errorf("open pcapng: %w", err)
		}
		src, linkType = ng, ng.LinkType()
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return res, fmt.Errorf("open pcap: %w", err)
		}
		src, linkType = pr, pr.LinkType()
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		data, ci, err := src.ReadPacketData()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("packet %d: %w", res.Packets+1, err)
		}
		res.Packets++

		pkt := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			continue
		}
		res.UDP++
		if port != 0 && int(udp.DstPort) != port {
			continue
		}
		if len(udp.Payload) == 0 {
			continue
		}
		res.Matched++
		if res.First.IsZero() {
			res.First = ci.Timestamp
		}
		res.Last = ci.Timestamp
		if h != nil {
			h(ctx, udp.Payload, ci.Timestamp)
		}
	}
}
