package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/certificate"
	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

const maxCertificateSize = 1 << 20

// segmentos de la ruta del repositorio: 6/6/2/2/2 dígitos.
var pathSegments = []int{6, 6, 2, 2, 2}

// OnlineOptions configuración del resolvedor en línea.
type OnlineOptions struct {
	BaseURL        string
	CacheDir       string
	ConnectTimeout time.Duration // 5s por omisión
	Timeout        time.Duration // total de la petición; 10s por omisión
	// MaxAge antigüedad máxima de una entrada de caché antes de volver a descargarla.
	// Cero: las entradas no caducan.
	MaxAge time.Duration
	// RateLimit descargas por segundo hacia el repositorio (cero: sin límite) y Burst
	// ráfaga admitida. Los aciertos de caché no consumen cuota.
	RateLimit float64
	Burst     int
	Observer  Observer
	Client   *http.Client // reemplaza el cliente construido a partir de los timeouts
}

// Online resuelve contra el repositorio público de certificados del SAT.
type Online struct {
	baseURL  string
	cacheDir string
	maxAge   time.Duration
	client   *http.Client
	limiter  *rate.Limiter // nil: sin límite
	observer Observer
}

// NewOnline crea el resolvedor en línea.
func NewOnline(opts OnlineOptions) *Online {
	if opts.BaseURL == "" {
		opts.BaseURL = sat.CertificateRepositoryURL
	}
	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Join(os.TempDir(), "cfdi-sat-certificates")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext,
				TLSHandshakeTimeout:   opts.ConnectTimeout,
				ResponseHeaderTimeout: opts.Timeout,
				MaxIdleConnsPerHost:   4,
			},
		}
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(opts.Burst, 1))
	}
	return &Online{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		limiter:  limiter,
		cacheDir: opts.CacheDir,
		maxAge:   opts.MaxAge,
		client:   client,
		observer: opts.Observer,
	}
}

// RepositoryPath divide el número en la ruta jerárquica del repositorio:
// 30001000000400002434 → 300010/000004/00/00/24/30001000000400002434.cer
func RepositoryPath(number string) []string {
	out := make([]string, 0, len(pathSegments)+1)
	pos := 0
	for _, n := range pathSegments {
		out = append(out, number[pos:pos+n])
		pos += n
	}
	return append(out, number+".cer")
}

// CachePath ruta del archivo de caché de un número válido.
func (o *Online) CachePath(number string) string {
	return filepath.Join(append([]string{o.cacheDir}, RepositoryPath(number)...)...)
}

// URL dirección del certificado en el repositorio.
func (o *Online) URL(number string) string {
	return o.baseURL + "/" + strings.Join(RepositoryPath(number), "/")
}

// Resolve implementa Resolver. Un acierto de caché no toca la red. Si la entrada de
// caché caducó y la descarga falla, se devuelve la copia caducada.
func (o *Online) Resolve(ctx context.Context, number string) (string, error) {
	digits := certificate.SanitizeNumber(number)
	if len(digits) != sat.CertificateNumberLength {
		return "", o.fail(InvalidCertificateNumber, number,
			fmt.Errorf("se esperaban %d dígitos, hay %d", sat.CertificateNumberLength, len(digits)))
	}

	path := o.CachePath(digits)
	cached, fresh := o.readCache(path)
	if cached != "" && fresh {
		o.observer.Resolved(SourceCache, digits)
		return cached, nil
	}

	body, err := o.fetch(ctx, digits)
	if err != nil {
		if cached != "" {
			o.observer.Resolved(SourceStale, digits)
			return cached, nil
		}
		return "", o.fail(NetworkError, digits, err)
	}

	pemText := certificate.CoerceToPEM(body)
	if err := writeAtomic(path, []byte(pemText)); err != nil {
		o.observer.CacheWriteFailed(digits, err)
	}
	o.observer.Resolved(SourceNetwork, digits)
	return pemText, nil
}

func (o *Online) readCache(path string) (pemText string, fresh bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	if _, err := certificate.Parse(data); err != nil {
		return "", false
	}
	fresh = o.maxAge <= 0 || time.Since(info.ModTime()) <= o.maxAge
	return certificate.CoerceToPEM(data), fresh
}

// fetch una sola petición acotada por los timeouts del cliente; sin reintentos.
// Si la espera por cuota excede el plazo de ctx, falla sin tocar la red.
func (o *Online) fetch(ctx context.Context, number string) ([]byte, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("límite de descargas: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.URL(number), nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCertificateSize))
	if err != nil {
		return nil, fmt.Errorf("leer respuesta: %w", err)
	}
	if len(body) == 0 {
		return nil, errors.New("respuesta vacía")
	}
	if _, err := certificate.Parse(body); err != nil {
		return nil, err
	}
	return body, nil
}

func (o *Online) fail(code Code, number string, err error) error {
	o.observer.Failed(code, number, err)
	return &ResolutionError{Code: code, Number: number, Err: err}
}

// writeAtomic escribe en un temporal del mismo directorio y lo renombra: resolvedores
// concurrentes del mismo número nunca dejan un archivo a medias.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cer-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
