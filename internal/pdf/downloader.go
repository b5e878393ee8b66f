// Package pdf downloads the documents behind resolved PDF links and checks
// that what arrived is a readable PDF.
package pdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// pdfMagic opens every PDF file.
var pdfMagic = []byte("%PDF-")

// Sentinel errors for PDF download operations.
var (
	// ErrNotPDF is returned when the response is neither labelled nor shaped like a PDF.
	ErrNotPDF = errors.New("pdf: response is not a PDF")
	// ErrTooLarge is returned when the file exceeds the maximum allowed size.
	ErrTooLarge = errors.New("pdf: file exceeds maximum size")
	// ErrDownloadFailed is returned when the download fails due to network or HTTP errors.
	ErrDownloadFailed = errors.New("pdf: download failed")
	// ErrSSRF is returned when the URL resolves to a private/internal network address.
	ErrSSRF = errors.New("pdf: request to private network denied")
)

// DownloadResult holds the result of downloading a PDF.
type DownloadResult struct {
	// Content is the PDF bytes.
	Content []byte
	// ContentHash is the SHA-256 hex digest of the content.
	ContentHash string
	// SizeBytes is the size of the content in bytes.
	SizeBytes int64
	// ContentType is the actual Content-Type header from the response.
	ContentType string
	// FinalURL is the URL the content was served from after redirects.
	FinalURL string
}

// Config holds downloader configuration.
type Config struct {
	// Timeout is the HTTP request timeout. Default: 60 seconds.
	Timeout time.Duration
	// MaxSize is the maximum file size in bytes. Default: 100MB.
	MaxSize int64
	// UserAgent is the User-Agent header. Default: "Helixir-PaperSearch/1.0".
	UserAgent string
	// AllowPrivateNetworks disables SSRF private-IP checks. This MUST only be
	// set to true in test environments. Production code must never set this.
	AllowPrivateNetworks bool
}

// Downloader downloads PDFs from URLs.
type Downloader struct {
	client               *http.Client
	maxSize              int64
	userAgent            string
	allowPrivateNetworks bool // For testing only; never enable in production.
}

// maxRedirects bounds publisher redirect chains (doi.org -> landing -> CDN).
const maxRedirects = 10

// NewDownloader creates a new Downloader with the given configuration.
func NewDownloader(cfg Config) *Downloader {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 100 * 1024 * 1024 // 100MB
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; Helixir-PaperSearch/1.0; +https://helixir.io/bot)"
	}

	d := &Downloader{
		maxSize:              cfg.MaxSize,
		userAgent:            cfg.UserAgent,
		allowPrivateNetworks: cfg.AllowPrivateNetworks,
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if !d.allowPrivateNetworks {
		// Checked on the resolved address, so a redirect or a DNS answer
		// that changes between lookup and connect cannot reach an internal host.
		dialer.Control = denyPrivateAddress
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.Proxy = nil

	d.client = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("%w: stopped after %d redirects", ErrDownloadFailed, maxRedirects)
			}
			return checkScheme(req.URL)
		},
	}

	return d
}

// blockedPrefixes are non-routable ranges that netip.Addr has no predicate for.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"), // benchmarking
}

// isPrivateIP reports whether ip is loopback, private, link-local,
// unspecified or otherwise not publicly routable.
func isPrivateIP(ip net.IP) bool {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return true
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsInterfaceLocalMulticast() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// denyPrivateAddress is a net.Dialer Control hook. address is the resolved
// "ip:port" about to be connected to.
func denyPrivateAddress(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSSRF, err)
	}
	ip := net.ParseIP(host)
	if ip == nil || isPrivateIP(ip) {
		return fmt.Errorf("%w: %s", ErrSSRF, host)
	}
	return nil
}

// checkScheme rejects anything but http and https (file://, gopher://, ...).
func checkScheme(u *url.URL) error {
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", ErrSSRF, u.Scheme)
	}
}

// Download fetches a PDF from the given URL.
// Returns ErrNotPDF if the body is not a PDF. Publishers and mirrors often
// label PDFs as application/octet-stream, so the body's magic bytes are
// accepted in place of the Content-Type.
// Returns ErrTooLarge if the response exceeds MaxSize.
// Returns ErrSSRF if the URL or a redirect targets a private network address.
// Returns ErrDownloadFailed wrapped with HTTP status for non-2xx responses.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %w", ErrDownloadFailed, err)
	}
	if err := checkScheme(req.URL); err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/pdf, */*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrSSRF) {
			return nil, fmt.Errorf("fetch %s: %w", req.URL.Host, ErrSSRF)
		}
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Check HTTP status
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrDownloadFailed, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	labelled := strings.Contains(strings.ToLower(contentType), "application/pdf")
	if !labelled && strings.Contains(strings.ToLower(contentType), "text/html") {
		// Landing pages (PubMed, doi.org) are HTML, never a PDF.
		return nil, fmt.Errorf("%w: Content-Type is %q", ErrNotPDF, contentType)
	}

	// Read body with size limit.
	// Read one extra byte to detect if file is too large.
	limitReader := io.LimitReader(resp.Body, d.maxSize+1)
	content, err := io.ReadAll(limitReader)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrDownloadFailed, err)
	}

	// Check if we read more than maxSize
	if int64(len(content)) > d.maxSize {
		return nil, fmt.Errorf("%w: exceeded %d bytes", ErrTooLarge, d.maxSize)
	}

	if !labelled && !bytes.HasPrefix(content, pdfMagic) {
		return nil, fmt.Errorf("%w: Content-Type is %q", ErrNotPDF, contentType)
	}

	// Compute SHA-256 hash
	hash := sha256.Sum256(content)

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &DownloadResult{
		Content:     content,
		ContentHash: hex.EncodeToString(hash[:]),
		SizeBytes:   int64(len(content)),
		ContentType: contentType,
		FinalURL:    finalURL,
	}, nil
}
