package certificate

import (
	"context"
	"crypto/x509"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TrustWatcher almacén de confianza que se recarga cuando cambia el archivo del
// paquete. Si la recarga falla se conserva el almacén anterior.
type TrustWatcher struct {
	path     string
	current  atomic.Pointer[TrustStore]
	watcher  *fsnotify.Watcher
	onReload func(store *TrustStore, err error)
}

// NewTrustWatcher carga el paquete de path y prepara la vigilancia del archivo.
// onReload (opcional) recibe el resultado de cada recarga.
func NewTrustWatcher(path string, onReload func(store *TrustStore, err error)) (*TrustWatcher, error) {
	store, err := LoadTrustStore(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("certificate: vigilar paquete de confianza: %w", err)
	}
	// Se vigila el directorio: los despliegues suelen reemplazar el archivo por rename.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("certificate: vigilar paquete de confianza: %w", err)
	}
	if onReload == nil {
		onReload = func(*TrustStore, error) {}
	}
	w := &TrustWatcher{path: filepath.Clean(path), watcher: fsw, onReload: onReload}
	w.current.Store(store)
	return w, nil
}

// Start procesa eventos hasta que ctx termine o se llame Close.
func (w *TrustWatcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *TrustWatcher) loop(ctx context.Context) {
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(200 * time.Millisecond)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.onReload(nil, err)
		case <-debounce:
			debounce = nil
			_ = w.Reload()
		}
	}
}

// Reload vuelve a leer el paquete. Un error deja vigente el almacén anterior.
func (w *TrustWatcher) Reload() error {
	store, err := LoadTrustStore(w.path)
	if err != nil {
		w.onReload(nil, err)
		return err
	}
	w.current.Store(store)
	w.onReload(store, nil)
	return nil
}

// Store almacén vigente.
func (w *TrustWatcher) Store() *TrustStore { return w.current.Load() }

// VerifyCert implementa Authority con el almacén vigente.
func (w *TrustWatcher) VerifyCert(cert *x509.Certificate, at time.Time) Result {
	return w.current.Load().VerifyCert(cert, at)
}

// Issuer implementa Authority con el almacén vigente.
func (w *TrustWatcher) Issuer(cert *x509.Certificate) (*x509.Certificate, bool) {
	return w.current.Load().Issuer(cert)
}

// Close detiene la vigilancia.
func (w *TrustWatcher) Close() error { return w.watcher.Close() }
