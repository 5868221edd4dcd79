package xshardlock

// Token 记录一次加锁调用实际持有的槽位集合，
// 解锁时必须原样回传。零值不代表任何持有。
//
// 两种形态：单槽位（R=1 读路径，无堆分配）与升序去重的多槽位集合。
// token 与一次在途持有一一对应，不得重放、不得在多次持有间共用。
type Token struct {
	single uint32
	multi  []uint32 // nil 表示单槽位形态
	held   bool
}

func singleToken(slot uint32) Token {
	return Token{single: slot, held: true}
}

func multiToken(slots []uint32) Token {
	return Token{multi: slots, held: true}
}

// Size 返回 token 持有的槽位数量（去重后）。
func (t Token) Size() int {
	if !t.held {
		return 0
	}
	if t.multi == nil {
		return 1
	}
	return len(t.multi)
}

// Slots 返回 token 持有的槽位下标，升序。未持有时返回 nil。
// 返回值是副本，修改不影响 token。
func (t Token) Slots() []uint32 {
	if !t.held {
		return nil
	}
	if t.multi == nil {
		return []uint32{t.single}
	}
	out := make([]uint32, len(t.multi))
	copy(out, t.multi)
	return out
}

// each 按升序遍历持有的槽位。
func (t Token) each(fn func(slot uint32)) {
	if t.multi == nil {
		fn(t.single)
		return
	}
	for _, s := range t.multi {
		fn(s)
	}
}

// valid 校验 token 形态及槽位下标是否落在 [0, n)。
func (t Token) valid(n int) bool {
	if !t.held {
		return false
	}
	if t.multi == nil {
		return int(t.single) < n
	}
	if len(t.multi) == 0 {
		return false
	}
	for _, s := range t.multi {
		if int(s) >= n {
			return false
		}
	}
	return true
}
