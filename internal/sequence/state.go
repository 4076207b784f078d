package sequence

// NoSequence 尚未收到任何帧的哨兵值
const NoSequence = -1

// DefaultWindow 每设备去重窗口默认容量
const DefaultWindow = 1024

// 16 位序号空间
const (
	seqSpace = 1 << 16
	seqHalf  = seqSpace / 2
)

// Distance 按序号回绕计算 from 到 to 的前进步数，结果落在 (-32768, 32768]
func Distance(from, to int) int {
	d := (to - from) % seqSpace
	switch {
	case d > seqHalf:
		d -= seqSpace
	case d <= -seqHalf:
		d += seqSpace
	}
	return d
}

// Outcome 单帧在线分类结果
type Outcome struct {
	Duplicate  bool
	Gap        bool
	GapSize    int // 缺失帧数 s-highest-1，仅 Gap 时非零
	OutOfOrder bool
	Wrapped    bool // 最高序号越过 65535 回到低位
	Highest    int  // 分类后的最高序号
}

// Fresh 非重复帧
func (o Outcome) Fresh() bool { return !o.Duplicate }

// Class 用于日志与指标的分类标签
func (o Outcome) Class() string {
	switch {
	case o.Duplicate:
		return "duplicate"
	case o.Gap:
		return "gap"
	case o.OutOfOrder:
		return "out_of_order"
	default:
		return "fresh"
	}
}

// DeviceState 单设备分类状态，仅由所属分片锁保护
type DeviceState struct {
	highest int
	recent  *Window
}

func newDeviceState(window int) *DeviceState {
	return &DeviceState{highest: NoSequence, recent: NewWindow(window)}
}

// Highest 当前最高已接收序号
func (d *DeviceState) Highest() int { return d.highest }

// Observe 按到达顺序推进状态机
func (d *DeviceState) Observe(seq int) Outcome {
	if d.recent.Contains(seq) {
		return Outcome{Duplicate: true, Highest: d.highest}
	}
	d.recent.Add(seq)

	var out Outcome
	if d.highest == NoSequence {
		d.highest = seq
		out.Highest = seq
		return out
	}
	if delta := Distance(d.highest, seq); delta > 0 {
		if delta > 1 {
			out.Gap = true
			out.GapSize = delta - 1
		}
		out.Wrapped = seq < d.highest
		d.highest = seq
	} else {
		// 未见过但低于最高序号：被后发帧超越的迟到帧
		out.OutOfOrder = true
	}
	out.Highest = d.highest
	return out
}
