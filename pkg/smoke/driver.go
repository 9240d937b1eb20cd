package smoke

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/last-emo-boy/market-smoke/pkg/auth"
	"github.com/last-emo-boy/market-smoke/pkg/client"
	"github.com/last-emo-boy/market-smoke/pkg/config"
	"github.com/last-emo-boy/market-smoke/pkg/database"
)

const (
	separator           = "----------------------------------------"
	placeholderFilename = "placeholder.jpg"
)

// Driver runs the fixed marketplace call sequence and prints every response
type Driver struct {
	cfg      *config.Config
	api      API
	out      io.Writer
	logger   *zap.Logger
	recorder Recorder
	openFile func(path string) (io.ReadCloser, error)
}

// Option configures a Driver
type Option func(*Driver)

// WithRecorder persists each run through r
func WithRecorder(r Recorder) Option {
	return func(d *Driver) {
		d.recorder = r
	}
}

// WithFileOpener replaces os.Open for the product image
func WithFileOpener(open func(path string) (io.ReadCloser, error)) Option {
	return func(d *Driver) {
		d.openFile = open
	}
}

// NewDriver creates a driver. Report blocks go to out, diagnostics to logger.
func NewDriver(cfg *config.Config, api API, out io.Writer, logger *zap.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		cfg:    cfg,
		api:    api,
		out:    out,
		logger: logger,
		openFile: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// run carries the state of one pass through the sequence
type run struct {
	report *Report
	record *database.SmokeRun
}

// Run executes the sequence once. HTTP failures never stop the run; only a
// missing token does. The returned error is non-nil only when ctx is done.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	r := &run{
		report: &Report{
			RunID:     uuid.New().String(),
			BaseURL:   d.cfg.Target.BaseURL,
			StartedAt: time.Now().UTC(),
		},
	}
	r.record = &database.SmokeRun{
		ID:        r.report.RunID,
		BaseURL:   r.report.BaseURL,
		StartedAt: r.report.StartedAt,
	}
	if d.recorder != nil {
		if err := d.recorder.StartRun(r.record); err != nil {
			d.logger.Warn("failed to record run start, history disabled for this run",
				zap.String("run_id", r.report.RunID), zap.Error(err))
			r.record = nil
		}
	}
	defer d.finish(r)

	d.logger.Info("smoke run started",
		zap.String("run_id", r.report.RunID),
		zap.String("base_url", r.report.BaseURL))

	token, err := d.authenticate(ctx, r)
	if err != nil {
		return r.report, err
	}
	if token == "" {
		fmt.Fprintln(d.out, AbortMessage)
		r.report.Aborted = true
		d.logger.Warn("no auth token, aborting", zap.String("run_id", r.report.RunID))
		return r.report, nil
	}
	d.logToken(token, r.report.TokenSource)

	profile := d.cfg.Profile
	calls := []func() error{
		func() error {
			_, err := d.step(ctx, r, client.StepGetProfile, func() (*client.Response, error) {
				return d.api.GetProfile(ctx, token)
			})
			return err
		},
		func() error {
			_, err := d.step(ctx, r, client.StepUpdateProfile, func() (*client.Response, error) {
				return d.api.UpdateProfile(ctx, token, client.UpdateProfileRequest{
					Username: profile.Username,
					Location: profile.Location,
				})
			})
			return err
		},
		func() error {
			resp, err := d.step(ctx, r, client.StepAddProduct, func() (*client.Response, error) {
				return d.addProduct(ctx, token)
			})
			r.report.ProductID = resp.ProductID()
			return err
		},
		func() error {
			_, err := d.step(ctx, r, client.StepListProducts, func() (*client.Response, error) {
				return d.api.ListProducts(ctx)
			})
			return err
		},
	}
	for _, call := range calls {
		if err := call(); err != nil {
			return r.report, err
		}
	}

	productID := r.report.ProductID
	if productID == "" {
		d.logger.Info("no product id, skipping purchase", zap.String("run_id", r.report.RunID))
		return r.report, nil
	}

	if _, err := d.step(ctx, r, client.StepBuyProduct, func() (*client.Response, error) {
		return d.api.BuyProduct(ctx, token, client.BuyRequest{
			ProductID: productID,
			Quantity:  d.cfg.Purchase.Quantity,
		})
	}); err != nil {
		return r.report, err
	}

	// History runs whatever the purchase outcome
	if _, err := d.step(ctx, r, client.StepTransactionHistory, func() (*client.Response, error) {
		return d.api.TransactionHistory(ctx, token)
	}); err != nil {
		return r.report, err
	}

	return r.report, nil
}

// authenticate registers, falling back to a single login when no token came back
func (d *Driver) authenticate(ctx context.Context, r *run) (string, error) {
	acct := d.cfg.Account

	resp, err := d.step(ctx, r, client.StepRegister, func() (*client.Response, error) {
		return d.api.Register(ctx, client.RegisterRequest{
			FullName: acct.FullName,
			Email:    acct.Email,
			Password: acct.Password,
			Phone:    acct.Phone,
			Address:  acct.Address,
		})
	})
	if err != nil {
		return "", err
	}
	if token := resp.Token(); token != "" {
		r.report.TokenSource = TokenFromRegister
		return token, nil
	}

	resp, err = d.step(ctx, r, client.StepLogin, func() (*client.Response, error) {
		return d.api.Login(ctx, client.LoginRequest{
			Email:    acct.Email,
			Password: acct.Password,
		})
	})
	if err != nil {
		return "", err
	}
	if token := resp.Token(); token != "" {
		r.report.TokenSource = TokenFromLogin
		return token, nil
	}
	return "", nil
}

// addProduct opens the image for the duration of the call only
func (d *Driver) addProduct(ctx context.Context, token string) (*client.Response, error) {
	p := d.cfg.Product
	req := client.AddProductRequest{
		Title:             p.Title,
		Price:             p.Price,
		OriginAddress:     p.OriginAddress,
		Type:              p.Type,
		Quantity:          p.Quantity,
		AvailableQuantity: p.AvailableQuantity,
		Description:       p.Description,
		Comment:           p.Comment,
	}

	if p.ImagePath == "" {
		data, err := placeholderJPEG()
		if err != nil {
			return nil, fmt.Errorf("failed to generate placeholder image: %w", err)
		}
		req.Image = &client.Upload{Filename: placeholderFilename, Content: bytes.NewReader(data)}
		return d.api.AddProduct(ctx, token, req)
	}

	f, err := d.openFile(p.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open product image: %w", err)
	}
	defer f.Close()

	req.Image = &client.Upload{Filename: p.ImagePath, Content: f}
	return d.api.AddProduct(ctx, token, req)
}

// step performs one call, prints its block and records it. The returned error
// is only the context's; call failures are reported and swallowed.
func (d *Driver) step(ctx context.Context, r *run, name string, call func() (*client.Response, error)) (*client.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info := steps[name]
	resp, err := call()

	result := StepResult{
		Seq:      len(r.report.Steps) + 1,
		Name:     name,
		Method:   info.method,
		Path:     info.path,
		Response: resp,
		Err:      err,
	}
	r.report.Steps = append(r.report.Steps, result)

	d.printBlock(info.announcement, resp, err)
	d.recordStep(r, result)

	if err != nil {
		d.logger.Warn("call failed",
			zap.String("step", name),
			zap.String("run_id", r.report.RunID),
			zap.Error(err))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, nil
	}
	return resp, nil
}

func (d *Driver) printBlock(announcement string, resp *client.Response, err error) {
	var b strings.Builder
	b.WriteString(announcement)
	b.WriteByte('\n')
	if err != nil {
		fmt.Fprintf(&b, "Error: %v\n", err)
	} else {
		fmt.Fprintf(&b, "Status: %d\n", resp.StatusCode)
		b.WriteString(resp.Body.String())
		b.WriteByte('\n')
	}
	b.WriteString(separator)
	b.WriteByte('\n')

	if _, werr := io.WriteString(d.out, b.String()); werr != nil {
		d.logger.Error("failed to write report block", zap.Error(werr))
	}
}

func (d *Driver) recordStep(r *run, result StepResult) {
	if d.recorder == nil || r.record == nil {
		return
	}

	step := &database.SmokeStep{
		RunID:      r.report.RunID,
		Seq:        result.Seq,
		Name:       result.Name,
		Method:     result.Method,
		Path:       result.Path,
		StatusCode: result.StatusCode(),
	}
	if result.Err != nil {
		step.Error = result.Err.Error()
	}
	if resp := result.Response; resp != nil {
		step.BodyKind = resp.Body.Kind.String()
		step.Body = resp.Body.Text()
		step.DurationMS = resp.Duration.Milliseconds()
	}

	if err := d.recorder.RecordStep(step); err != nil {
		d.logger.Warn("failed to record step",
			zap.String("run_id", r.report.RunID),
			zap.String("step", result.Name),
			zap.Error(err))
	}
}

func (d *Driver) finish(r *run) {
	r.report.FinishedAt = time.Now().UTC()

	d.logger.Info("smoke run finished",
		zap.String("run_id", r.report.RunID),
		zap.Int("calls", len(r.report.Steps)),
		zap.Int("failures", r.report.Failures()),
		zap.String("token_source", r.report.TokenSource),
		zap.String("product_id", r.report.ProductID),
		zap.Bool("aborted", r.report.Aborted))

	if d.recorder == nil || r.record == nil {
		return
	}
	finishedAt := r.report.FinishedAt
	r.record.TokenSource = r.report.TokenSource
	r.record.ProductID = r.report.ProductID
	r.record.Aborted = r.report.Aborted
	r.record.FinishedAt = &finishedAt
	if err := d.recorder.FinishRun(r.record); err != nil {
		d.logger.Warn("failed to record run result", zap.String("run_id", r.report.RunID), zap.Error(err))
	}
}

// logToken reports what can be read from the token without the server's key
func (d *Driver) logToken(token, source string) {
	info := auth.Inspect(token)
	if info.Opaque {
		d.logger.Info("authenticated", zap.String("token_source", source), zap.Bool("opaque_token", true))
		return
	}

	fields := []zap.Field{
		zap.String("token_source", source),
		zap.String("alg", info.Algorithm),
		zap.String("subject", info.Subject),
	}
	if !info.ExpiresAt.IsZero() {
		fields = append(fields,
			zap.Time("expires_at", info.ExpiresAt),
			zap.Bool("expired", info.Expired(time.Now())))
	}
	d.logger.Info("authenticated", fields...)
}

// placeholderJPEG renders a small solid image used when no image path is configured
func placeholderJPEG() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	fill := color.RGBA{R: 200, G: 30, B: 30, A: 255}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
