//go:build windows

package native

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/saweedkh/kiosk-backend-sub000/internal/config"
)

// dllSession binds the four entry points the vendor library exports:
//
//	bool InitializePOS(const char* ip, int port)
//	bool SendPaymentRequest(const char* request)
//	const char* GetResponse(void)
//	void ClosePOS(void)
type dllSession struct {
	handle      windows.Handle
	sendProc    uintptr
	getRespProc uintptr
	closeProc   uintptr
}

func newVendorSession(cfg config.Config) (vendorSession, error) {
	if cfg.VendorLibraryPath == "" {
		return nil, fmt.Errorf("no vendor library configured")
	}

	handle, err := windows.LoadLibrary(cfg.VendorLibraryPath)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", cfg.VendorLibraryPath, err)
	}

	s := &dllSession{handle: handle}
	ok := true
	mustProc := func(name string) uintptr {
		p, err := windows.GetProcAddress(handle, name)
		if err != nil {
			ok = false
		}
		return p
	}
	initProc := mustProc("InitializePOS")
	s.sendProc = mustProc("SendPaymentRequest")
	s.getRespProc = mustProc("GetResponse")
	s.closeProc = mustProc("ClosePOS")
	if !ok {
		_ = windows.FreeLibrary(handle)
		return nil, fmt.Errorf("library %s is missing required exports", cfg.VendorLibraryPath)
	}

	host, err := windows.BytePtrFromString(cfg.TerminalHost)
	if err != nil {
		_ = windows.FreeLibrary(handle)
		return nil, err
	}
	ret, _, _ := windows.SyscallN(initProc, uintptr(unsafe.Pointer(host)), uintptr(cfg.TerminalPort))
	if ret == 0 {
		_ = windows.FreeLibrary(handle)
		return nil, fmt.Errorf("InitializePOS(%s) failed", cfg.TerminalAddr())
	}

	return s, nil
}

func (s *dllSession) Send(request string) error {
	req, err := windows.BytePtrFromString(request)
	if err != nil {
		return err
	}
	ret, _, _ := windows.SyscallN(s.sendProc, uintptr(unsafe.Pointer(req)))
	if ret == 0 {
		return fmt.Errorf("SendPaymentRequest returned false")
	}
	return nil
}

func (s *dllSession) Response() (string, error) {
	ret, _, _ := windows.SyscallN(s.getRespProc)
	if ret == 0 {
		return "", nil
	}
	return cString(ret), nil
}

func (s *dllSession) Close() error {
	_, _, _ = windows.SyscallN(s.closeProc)
	return windows.FreeLibrary(s.handle)
}

// cString copies a NUL terminated char* into a Go string.
func cString(p uintptr) string {
	var out []byte
	for {
		b := *(*byte)(unsafe.Pointer(p))
		if b == 0 {
			break
		}
		out = append(out, b)
		p++
	}
	return string(out)
}
