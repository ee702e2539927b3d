package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	wazeroapi "github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"kiama-backend/internal/models"
)

// wasmPlugin runs a verified WASM unit inside an isolated wazero runtime.
// The guest only reaches the host through the "env" functions built from
// its granted capabilities; everything else is unreachable by construction.
//
// Guest ABI:
//
//	alloc(size: u32) -> ptr: u32                    (required)
//	init()                                          (optional)
//	handle_message(ptr: u32, len: u32) -> u64       (optional; ptr<<32|len
//	                                                 of the transformed
//	                                                 message JSON, 0 to
//	                                                 leave it unchanged)
// guestCallTimeout bounds every call into a guest. The runtime is compiled
// with close-on-context-done, so an overrunning guest is torn down instead
// of holding the plugin mutex forever.
var guestCallTimeout = 2 * time.Second

type wasmPlugin struct {
	manifest  Manifest
	unitBytes []byte
	sugar     *zap.SugaredLogger

	mutex   sync.Mutex
	runtime wazero.Runtime
	module  wazeroapi.Module
}

func newWasmPlugin(manifest Manifest, unitBytes []byte, sugar *zap.SugaredLogger) *wasmPlugin {
	return &wasmPlugin{
		manifest:  manifest,
		unitBytes: unitBytes,
		sugar:     sugar.Named(manifest.Name),
	}
}

func (p *wasmPlugin) Manifest() Manifest {
	return p.manifest
}

func (p *wasmPlugin) Init(api *API) error {
	ctx := context.Background()

	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	if err := p.instantiateHostModule(ctx, runtime, api); err != nil {
		_ = runtime.Close(ctx)
		return err
	}

	compiled, err := runtime.CompileModule(ctx, p.unitBytes)
	if err != nil {
		_ = runtime.Close(ctx)
		return fmt.Errorf("WASM compilation failed: %w", err)
	}

	config := wazero.NewModuleConfig().
		WithName(p.manifest.Name).
		WithStartFunctions() // lifecycle is explicit, no _start

	module, err := runtime.InstantiateModule(ctx, compiled, config)
	if err != nil {
		_ = runtime.Close(ctx)
		return fmt.Errorf("WASM instantiation failed: %w", err)
	}

	p.runtime = runtime
	p.module = module

	if initFn := module.ExportedFunction("init"); initFn != nil {
		initCtx, cancel := context.WithTimeout(ctx, guestCallTimeout)
		_, err := initFn.Call(initCtx)
		cancel()
		if err != nil {
			_ = runtime.Close(ctx)
			return fmt.Errorf("WASM init failed: %w", err)
		}
	}

	if module.ExportedFunction("handle_message") != nil {
		if registrar, granted := api.MessageHandlers(); granted {
			registrar.AddMessageHandler(p.handleMessage)
		} else {
			p.sugar.Warn("Unit exports handle_message but the messageHandler permission wasn't declared")
		}
	}

	return nil
}

// instantiateHostModule exposes host functions for granted capabilities
// only. An undeclared capability has no corresponding import to call.
func (p *wasmPlugin) instantiateHostModule(ctx context.Context, runtime wazero.Runtime, api *API) error {
	builder := runtime.NewHostModuleBuilder("env")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod wazeroapi.Module, ptr uint32, size uint32) {
			if text, ok := readGuestBytes(mod, ptr, size); ok {
				p.sugar.Infof("%s", text)
			}
		}).
		Export("plugin_log")

	if sender, granted := api.Sender(); granted {
		builder.NewFunctionBuilder().
			WithFunc(func(ctx context.Context, mod wazeroapi.Module, ptr uint32, size uint32) uint32 {
				raw, ok := readGuestBytes(mod, ptr, size)
				if !ok {
					return 1
				}
				var msg struct {
					ChannelID int64          `json:"channelID,string"`
					Content   string         `json:"content"`
					Type      string         `json:"type"`
					Payload   map[string]any `json:"payload"`
				}
				if err := json.Unmarshal(raw, &msg); err != nil {
					p.sugar.Errorf("Guest sent malformed message: %v", err)
					return 1
				}
				if err := sender.SendMessage(msg.ChannelID, msg.Content, msg.Type, msg.Payload); err != nil {
					p.sugar.Error(err)
					return 1
				}
				return 0
			}).
			Export("send_message")
	}

	_, err := builder.Instantiate(ctx)
	return err
}

// handleMessage bridges the pipeline into the guest. Any guest failure
// leaves the message unchanged; the pipeline treats it like a skipped
// handler.
func (p *wasmPlugin) handleMessage(msg models.Message) models.Message {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.module == nil {
		return msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), guestCallTimeout)
	defer cancel()

	inputBytes, err := json.Marshal(msg)
	if err != nil {
		p.sugar.Error(err)
		return msg
	}

	ptr, ok := p.writeGuestBytes(ctx, inputBytes)
	if !ok {
		return msg
	}

	results, err := p.module.ExportedFunction("handle_message").Call(ctx, uint64(ptr), uint64(len(inputBytes)))
	if err != nil {
		p.sugar.Errorf("handle_message trapped: %v", err)
		if ctx.Err() != nil {
			// close-on-context-done tore the runtime down, the unit is dead
			p.module = nil
		}
		return msg
	}
	if len(results) == 0 || results[0] == 0 {
		return msg
	}

	outPtr := uint32(results[0] >> 32)
	outLen := uint32(results[0])
	outputBytes, ok := readGuestBytes(p.module, outPtr, outLen)
	if !ok {
		return msg
	}

	var transformed models.Message
	if err := json.Unmarshal(outputBytes, &transformed); err != nil {
		p.sugar.Errorf("Guest returned malformed message: %v", err)
		return msg
	}
	return transformed
}

func (p *wasmPlugin) writeGuestBytes(ctx context.Context, data []byte) (uint32, bool) {
	allocFn := p.module.ExportedFunction("alloc")
	if allocFn == nil {
		p.sugar.Error("Unit exports no alloc function")
		return 0, false
	}

	results, err := allocFn.Call(ctx, uint64(len(data)))
	if err != nil || len(results) == 0 {
		p.sugar.Errorf("Guest alloc failed: %v", err)
		return 0, false
	}

	ptr := uint32(results[0])
	if !p.module.Memory().Write(ptr, data) {
		p.sugar.Error("Guest memory write out of range")
		return 0, false
	}
	return ptr, true
}

func readGuestBytes(mod wazeroapi.Module, ptr uint32, size uint32) ([]byte, bool) {
	data, ok := mod.Memory().Read(ptr, size)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

func (p *wasmPlugin) Cleanup() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.runtime != nil {
		_ = p.runtime.Close(context.Background())
		p.runtime = nil
		p.module = nil
	}
}
