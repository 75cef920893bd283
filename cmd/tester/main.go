package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"transfer-lab/domain"
	"transfer-lab/domain/event"
	"transfer-lab/infrastructure/cluster"
	"transfer-lab/infrastructure/tcpnet"
	"transfer-lab/observability"
	"transfer-lab/projection"
	"transfer-lab/runtime/workers"
	"transfer-lab/services"
	"transfer-lab/sink"
	"transfer-lab/transfer"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

const usage = `Usage: tester [flags] <command> [command flags] [args]

Commands:
  upload    -channel NAME [-conns N] [-caption MODE] FILE...
  download  -channel NAME [-conns N] [-out DIR] [-mirror s3://bucket/prefix] NAME
  list      -channel NAME
  archives  -channel NAME
  search    -channel NAME [-limit N] QUERY...
  delete    -channel NAME [-messages IDS] [NAME]

Flags:
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	sessionPath := flag.String("session", "transfer.session", "session credential file written by the daemon")
	logLevel := flag.String("log", "ERROR", "engine log level")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		return fmt.Errorf("missing command")
	}

	app, err := buildApp(*sessionPath, *logLevel)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	command, args := flag.Arg(0), flag.Args()[1:]
	switch command {
	case "upload":
		return app.upload(ctx, args)
	case "download":
		return app.download(ctx, args)
	case "list":
		return app.list(ctx, args)
	case "archives":
		return app.archives(ctx, args)
	case "search":
		return app.search(ctx, args)
	case "delete":
		return app.remove(ctx, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// app wires the engine once and lends it to whichever command runs. Events
// fan out to the timeline and the monitor in the background so a command
// can print a recap when it is done.
type app struct {
	log       *slog.Logger
	transfers *services.TransferService
	catalog   *services.CatalogService
	monitor   *observability.MonitoringManager
	timeline  *projection.Timeline

	stop    context.CancelFunc
	drained chan struct{}
	settled sync.Once
}

func buildApp(sessionPath, logLevel string) (*app, error) {
	logger := logs.GetLoggerFromString(logLevel)

	file, err := cluster.LoadSessionFile(sessionPath)
	if err != nil {
		return nil, err
	}

	transport := tcpnet.NewTransport(logger, 10*time.Second)
	session := file.Session(logger, transport)
	engine := transfer.NewEngine(logger, transport, session)

	timeline := projection.NewTimeline()
	monitor := observability.NewMonitoringManager(logger)
	events := make(chan event.DomainEvent, 64)
	fanout := workers.NewEventFanout(logger, events, 2*time.Second)
	fanout.Add(timeline, monitor)

	fanCtx, stop := context.WithCancel(context.Background())
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		_ = fanout.Run(fanCtx)
	}()

	return &app{
		log:       logger,
		transfers: services.NewTransferService(logger, engine, fanout),
		catalog:   services.NewCatalogService(logger, transport, session, fanout),
		monitor:   monitor,
		timeline:  timeline,
		stop:      stop,
		drained:   drained,
	}, nil
}

// settle stops the fan-out and waits until every published event landed, so
// the timeline is complete before anyone reads it.
func (a *app) settle() {
	a.settled.Do(func() {
		a.stop()
		<-a.drained
	})
}

func (a *app) Close() {
	a.settle()
}

func (a *app) upload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	channel := fs.String("channel", "", "destination channel")
	conns := fs.Int("conns", 4, "parallel connections")
	caption := fs.String("caption", string(domain.CaptionDetailed), "caption mode: none, minimal or detailed")
	quiet := fs.Bool("quiet", false, "disable the progress bar")
	_ = fs.Parse(args)

	if *channel == "" {
		return fmt.Errorf("upload: -channel is required")
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("upload: missing file path")
	}

	for _, path := range fs.Args() {
		if err := a.uploadOne(ctx, path, *channel, *conns, domain.CaptionMode(*caption), *quiet); err != nil {
			return err
		}
	}
	if fs.NArg() > 1 {
		a.recap()
	}
	return nil
}

func (a *app) uploadOne(ctx context.Context, path, channel string, conns int,
	caption domain.CaptionMode, quiet bool) error {
	progress, finish := newProgressBar(filepath.Base(path), quiet)

	ref, size, mime, err := a.transfers.UploadObject(ctx, domain.UploadCommand{
		Path:           path,
		Channel:        channel,
		MaxConnections: conns,
	}, progress)
	finish(err != nil)
	if err != nil {
		return fmt.Errorf("upload %q: %w", path, err)
	}

	doc, err := a.catalog.Attach(ctx, channel, ref, size, mime, caption)
	if err != nil {
		return fmt.Errorf("attach %q: %w", path, err)
	}

	color.Green.Printf("Uploaded %s (%s) to %s as message %d\n",
		doc.Name, humanize.Bytes(uint64(size)), channel, doc.MessageID)
	return nil
}

func (a *app) download(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	channel := fs.String("channel", "", "source channel")
	out := fs.String("out", ".", "output directory")
	conns := fs.Int("conns", 4, "parallel connections")
	mirror := fs.String("mirror", "", "also stream a copy under this s3://bucket/prefix")
	quiet := fs.Bool("quiet", false, "disable the progress bar")
	_ = fs.Parse(args)

	if *channel == "" {
		return fmt.Errorf("download: -channel is required")
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("download: give one archive or document name")
	}
	name := fs.Arg(0)

	docs, err := a.resolve(ctx, *channel, name)
	if err != nil {
		return err
	}

	var mirrorClient *s3.Client
	if *mirror != "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		mirrorClient = s3.NewFromConfig(cfg)
	}

	for _, doc := range docs {
		if err := a.downloadOne(ctx, doc, *out, *conns, *mirror, mirrorClient, *quiet); err != nil {
			return err
		}
	}
	if len(docs) > 1 {
		a.recap()
	}
	return nil
}

// resolve turns a name into the documents to fetch: the parts of the archive
// carrying that name, or the single document matching it exactly.
func (a *app) resolve(ctx context.Context, channel, name string) ([]domain.Document, error) {
	archives, err := a.catalog.Archives(ctx, channel)
	if err != nil {
		return nil, err
	}
	for _, archive := range archives {
		if archive.Name == name {
			return archive.Documents, nil
		}
	}

	docs, err := a.catalog.Documents(ctx, channel)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if doc.Name == name {
			return []domain.Document{doc}, nil
		}
	}
	return nil, fmt.Errorf("nothing named %q on %s", name, channel)
}

func (a *app) downloadOne(ctx context.Context, doc domain.Document, outDir string,
	conns int, mirror string, mirrorClient *s3.Client, quiet bool) error {
	disk, err := sink.NewDiskSink(a.log, filepath.Join(outDir, doc.Name))
	if err != nil {
		return err
	}

	writers := []io.Writer{disk}
	var s3sink *sink.S3Sink
	if mirror != "" {
		bucket, prefix, err := sink.ParseS3URL(mirror)
		if err != nil {
			disk.Abort()
			return err
		}
		key := strings.TrimSuffix(prefix, "/") + "/" + doc.Name
		s3sink = sink.NewS3Sink(ctx, a.log, mirrorClient, bucket, key, doc.Mimetype)
		writers = append(writers, s3sink)
	}

	progress, finish := newProgressBar(doc.Name, quiet)
	err = a.transfers.DownloadObject(ctx, domain.DownloadCommand{
		Location:       doc.Location,
		Size:           doc.Size,
		MaxConnections: conns,
	}, io.MultiWriter(writers...), progress)
	finish(err != nil)
	if err != nil {
		disk.Abort()
		if s3sink != nil {
			s3sink.Abort()
		}
		return fmt.Errorf("download %q: %w", doc.Name, err)
	}

	if err := disk.Close(); err != nil {
		return err
	}
	if s3sink != nil {
		if err := s3sink.Close(); err != nil {
			return err
		}
	}
	color.Green.Printf("Downloaded %s (%s)\n", doc.Name, humanize.Bytes(uint64(doc.Size)))
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	channel := fs.String("channel", "", "channel to list")
	_ = fs.Parse(args)
	if *channel == "" {
		return fmt.Errorf("list: -channel is required")
	}

	docs, err := a.catalog.Documents(ctx, *channel)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Printf("Channel %s is empty\n", *channel)
		return nil
	}
	renderDocuments(docs)
	return nil
}

func (a *app) archives(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("archives", flag.ExitOnError)
	channel := fs.String("channel", "", "channel to list")
	_ = fs.Parse(args)
	if *channel == "" {
		return fmt.Errorf("archives: -channel is required")
	}

	archives, err := a.catalog.Archives(ctx, *channel)
	if err != nil {
		return err
	}
	if len(archives) == 0 {
		fmt.Printf("No archives on %s\n", *channel)
		return nil
	}

	table := newTable()
	table.SetHeader([]string{"Name", "Parts", "Size", "Date"})
	for _, archive := range archives {
		table.Append([]string{
			archive.Name,
			strconv.Itoa(archive.Parts()),
			humanize.Bytes(uint64(archive.TotalSize)),
			archive.Date.Format("2006-01-02 15:04"),
		})
	}
	table.Render()
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	channel := fs.String("channel", "", "channel to search")
	limit := fs.Int("limit", 20, "maximum number of hits")
	_ = fs.Parse(args)
	if *channel == "" {
		return fmt.Errorf("search: -channel is required")
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("search: missing query")
	}
	query := strings.Join(fs.Args(), " ")

	docs, err := a.catalog.SearchArchives(ctx, *channel, query, *limit)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Printf("No match for %q on %s\n", query, *channel)
		return nil
	}
	renderDocuments(docs)
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	channel := fs.String("channel", "", "channel to delete from")
	messages := fs.String("messages", "", "comma separated message IDs instead of an archive name")
	_ = fs.Parse(args)
	if *channel == "" {
		return fmt.Errorf("delete: -channel is required")
	}

	if *messages != "" {
		ids, err := parseMessageIDs(*messages)
		if err != nil {
			return err
		}
		n, err := a.catalog.DeleteDocuments(ctx, *channel, ids)
		if err != nil {
			return err
		}
		color.Yellow.Printf("Deleted %d document(s) from %s\n", n, *channel)
		return nil
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("delete: give an archive name or -messages")
	}
	n, err := a.catalog.DeleteArchive(ctx, *channel, fs.Arg(0))
	if err != nil {
		return err
	}
	color.Yellow.Printf("Deleted %d part(s) of %s from %s\n", n, fs.Arg(0), *channel)
	return nil
}

// recap settles the event fan-out and prints one line per transfer of this
// invocation.
func (a *app) recap() {
	a.settle()
	records := a.timeline.Records()
	if len(records) == 0 {
		return
	}

	table := newTable()
	table.SetHeader([]string{"Direction", "Name", "Size", "Status", "Duration"})
	for _, rec := range records {
		status := string(rec.Status)
		if rec.Status == projection.StatusFailed {
			status = color.Red.Render(status + ": " + rec.Reason)
		}
		table.Append([]string{
			string(rec.Direction),
			rec.Name,
			humanize.Bytes(uint64(rec.Size)),
			status,
			rec.Duration.Truncate(time.Millisecond).String(),
		})
	}
	table.Render()
}

func parseMessageIDs(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad message ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func renderDocuments(docs []domain.Document) {
	table := newTable()
	table.SetHeader([]string{"Message", "Name", "Kind", "Size", "DC", "Date"})
	for _, doc := range docs {
		table.Append([]string{
			strconv.FormatInt(doc.MessageID, 10),
			doc.Name,
			string(doc.Kind),
			humanize.Bytes(uint64(doc.Size)),
			strconv.Itoa(doc.Location.DC),
			doc.Date.Format("2006-01-02 15:04"),
		})
	}
	table.Render()
}

func newTable() *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

// newProgressBar bridges engine progress reports onto an mpb bar. The bar is
// created lazily on the first report, when the total is known.
func newProgressBar(name string, quiet bool) (transfer.ProgressFunc, func(failed bool)) {
	if quiet {
		return nil, func(bool) {}
	}

	p := mpb.New(mpb.WithWidth(42))
	var bar *mpb.Bar
	var prev int64
	last := time.Now()

	fn := func(transferred, total int64) {
		if bar == nil {
			bar = p.AddBar(total,
				mpb.PrependDecorators(
					decor.Name(name, decor.WCSyncSpaceR),
					decor.CountersKibiByte("% .2f / % .2f"),
				),
				mpb.AppendDecorators(
					decor.OnComplete(decor.EwmaETA(decor.ET_STYLE_GO, 30), ""),
					decor.OnComplete(decor.EwmaSpeed(decor.SizeB1024(0), "% .2f", 30), "done"),
				),
			)
		}
		now := time.Now()
		bar.EwmaIncrInt64(transferred-prev, now.Sub(last))
		prev, last = transferred, now
		bar.SetTotal(total, total > 0 && transferred >= total)
	}

	finish := func(failed bool) {
		if bar == nil {
			return
		}
		if failed {
			bar.Abort(true)
		} else {
			bar.SetTotal(-1, true)
		}
		p.Wait()
	}
	return transfer.Throttle(fn, 120*time.Millisecond), finish
}
