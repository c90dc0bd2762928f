package cartridge

import (
	"bytes"
	"testing"
)

func TestWriteBlockRegister_RepeatIsNoop(t *testing.T) {
	env := attach(t)
	env.w.queue(fill(0x33))

	env.s.WriteBlockRegister(0x21)
	env.s.WriteBlockRegister(0x21)

	loads := 0
	for _, f := range env.w.frames() {
		if len(f) == 4 && f[2] == opLoadBlock {
			loads++
		}
	}
	if loads != 1 {
		t.Errorf("load commands = %d, want 1", loads)
	}
	if env.m.BlocksLoaded() != 1 {
		t.Errorf("blocks loaded = %d, want 1", env.m.BlocksLoaded())
	}
}

func TestWriteBlockRegister_AttachIsNotASwitch(t *testing.T) {
	env := attach(t)
	if env.m.BlocksLoaded() != 0 {
		t.Errorf("blocks loaded after attach = %d, want 0", env.m.BlocksLoaded())
	}

	env.w.queue(fill(1))
	env.s.WriteBlockRegister(2)
	env.w.queue(fill(2))
	env.s.WriteBlockRegister(3)
	if env.m.BlocksLoaded() != 2 {
		t.Errorf("blocks loaded = %d, want 2", env.m.BlocksLoaded())
	}
}

func TestWriteBlockRegister_SystemBlockReloads(t *testing.T) {
	env := attach(t)
	env.w.queue(ramp(0x80))

	env.s.WriteBlockRegister(SystemBlock)

	frames := env.w.frames()
	if len(frames) == 0 || !bytes.Equal(frames[0], []byte{0x20, 0x7F, 0xF7, 0xFF}) {
		t.Fatalf("first frame = % X, want freemap command", frames)
	}
	for _, f := range frames {
		if len(f) == 4 && f[2] == opLoadBlock {
			t.Error("system block rewrite must not load")
		}
	}
	if env.m.SystemReloads() != 1 || env.m.BlocksLoaded() != 0 {
		t.Errorf("reloads/loads = %d/%d", env.m.SystemReloads(), env.m.BlocksLoaded())
	}
	if got := env.s.WindowRead(0); got != 0x80 {
		t.Errorf("window = $%02X", got)
	}
}

func TestWriteBlockRegister_BackToSystemLoads(t *testing.T) {
	env := attach(t)
	env.w.queue()
	env.s.WriteBlockRegister(1)
	env.w.queue()
	env.s.WriteBlockRegister(SystemBlock)

	frames := env.w.frames()
	if !bytes.Equal(frames[len(frames)-3], []byte{0x20, 0x7F, 0xFC, 0xFF}) {
		t.Errorf("switching back should load the system block: % X", frames)
	}
}

func TestWritePageRegister_ForcesReady(t *testing.T) {
	env := attach(t)
	for _, v := range []uint8{0x00, 0x05, 0x3F, 0x45, 0x80} {
		env.s.WritePageRegister(v)
		got := env.s.ReadPageRegister()
		if got != v|pageReady {
			t.Errorf("write $%02X: page select = $%02X", v, got)
		}
		if env.s.pageIndex() != int(v&0x3F) {
			t.Errorf("write $%02X: index = %d", v, env.s.pageIndex())
		}
	}
}

func TestReadPageRegister_NoSideEffect(t *testing.T) {
	env := attach(t)
	env.s.WritePageRegister(7)
	before := env.s.PageSelect()
	for i := 0; i < 3; i++ {
		env.s.ReadPageRegister()
	}
	if env.s.PageSelect() != before || len(env.w.frames()) != 0 {
		t.Error("reading the page register changed state")
	}
}

func TestWindow_Direction(t *testing.T) {
	env := attach(t)
	env.w.queue(ramp(0), ramp(0x10))
	env.s.WriteBlockRegister(2)
	env.s.WritePageRegister(1)

	// Ready: every address in the 4 KiB window mirrors page 1.
	for addr := uint16(0); addr <= 0xFFF; addr++ {
		if got, want := env.s.WindowRead(addr), 0x10+byte(addr); got != want {
			t.Fatalf("ready read $%03X = $%02X, want $%02X", addr, got, want)
		}
	}
	env.s.WindowStore(0x005, 0x00)
	if env.s.WindowRead(0x005) != 0x15 {
		t.Error("store while ready must be ignored")
	}

	// Loading: reads yield the sentinel, stores land in the cache.
	env.s.page = 1
	for addr := uint16(0); addr <= 0xFFF; addr++ {
		if got := env.s.WindowRead(addr); got != WindowSentinel {
			t.Fatalf("loading read $%03X = $%02X, want sentinel", addr, got)
		}
	}
	env.s.WindowStore(0xA05, 0x77)
	env.s.page |= pageReady
	if got := env.s.WindowRead(0x005); got != 0x77 {
		t.Errorf("store while loading = $%02X, want $77", got)
	}
	if env.s.cache[PageSize+5] != 0x77 {
		t.Error("store landed in the wrong page")
	}
}

func TestPage_Copy(t *testing.T) {
	env := attach(t)
	env.w.queue(ramp(9))
	env.s.WriteBlockRegister(3)

	p := env.s.Page(0)
	p[0] = 0xFF
	if env.s.WindowRead(0) != 9 {
		t.Error("Page should return a copy")
	}
}
