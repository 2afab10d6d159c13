package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/docopt/docopt-go"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/ai4ar"
	"github.com/t7a/ai4ar/mpcodec"
)

func init() {
	formatter := &log.TextFormatter{DisableTimestamp: true}
	if os.Getenv("DEBUG") == "1" {
		log.SetLevel(log.DebugLevel)
		log.SetReportCaller(true)
		formatter.CallerPrettyfier = caller
		formatter.FieldMap = log.FieldMap{log.FieldKeyFile: "caller"}
	}
	log.SetFormatter(formatter)
}

// caller reports a log site as `pkg/file.go:line gid N`.
func caller(f *runtime.Frame) (function string, file string) {
	dir := filepath.Base(filepath.Dir(f.File))
	return "", fmt.Sprintf("%s/%s:%d gid %d", dir, filepath.Base(f.File), f.Line, getGID())
}

// getGID returns the goroutine ID of its calling function, for logging purposes.
func getGID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	b = b[:bytes.IndexByte(b, ' ')]
	n, _ := strconv.ParseUint(string(b), 10, 64)
	return n
}

type Opts struct {
	Summarize bool     `docopt:"summarize"`
	Keys      bool     `docopt:"keys"`
	Combine   bool     `docopt:"combine"`
	Datadir   string   `docopt:"<datadir>"`
	Cases     []string `docopt:"<cases>"`
	Case      string   `docopt:"<case>"`
	Pattern   string   `docopt:"<pattern>"`
	Key       string   `docopt:"<key>"`
	Config    string   `docopt:"--config"`
	Cache     string   `docopt:"--cache"`
	Agree     string   `docopt:"-n"`
	Long      bool     `docopt:"-l"`
}

func main() {
	// see https://github.com/google/go-cmdtest
	os.Exit(run())
}

func run() (rc int) {

	usage := `ai4ar

Usage:
  ai4ar summarize [options] <datadir> [<cases>...]
  ai4ar keys [options] [-l] <datadir> <case> [<pattern>]
  ai4ar combine [options] [-n <agree>] <datadir> <case> <key>

Options:
  -h --help         Show this screen.
  --version         Show version.
  --config=<file>   TOML layout overriding the defaults.
  --cache=<dir>     Cache dir, <datadir>/cache when unset.
  -n <agree>        Raters that must agree on a voxel [default: 1].
  -l                Show kind and size of each image.
`
	parser := &docopt.Parser{OptionsFirst: false}
	o, _ := parser.ParseArgs(usage, os.Args[1:], "0.0")
	var opts Opts
	err := o.Bind(&opts)
	if err != nil {
		log.Error(err)
		return 22
	}
	log.Debug(opts)

	ds, err := open(opts)
	if err != nil {
		log.Error(err)
		return 42
	}

	switch true {
	case opts.Summarize:
		err = summarize(ds, opts.Cases)
	case opts.Keys:
		err = keys(ds, opts.Case, opts.Pattern, opts.Long)
	case opts.Combine:
		var n int
		n, err = strconv.Atoi(opts.Agree)
		if err != nil {
			log.Errorf("-n: %v", err)
			return 22
		}
		err = combine(ds, opts.Case, opts.Key, n)
	}
	if err != nil {
		log.Error(err)
		return 42
	}
	return 0
}

func open(opts Opts) (*ai4ar.Dataset, error) {
	cfg := ai4ar.DefaultConfig()
	if opts.Config != "" {
		var err error
		cfg, err = ai4ar.LoadConfig(opts.Config)
		if err != nil {
			return nil, err
		}
	}
	cache := opts.Cache
	if cache == "" {
		cache = filepath.Join(opts.Datadir, "cache")
	}
	return ai4ar.Open(opts.Datadir, cache, cfg, mpcodec.Codec{})
}

func summarize(ds *ai4ar.Dataset, ids []string) error {
	if len(ids) == 0 {
		ids = ds.IDs()
	}
	images := 0
	for _, id := range ids {
		c, err := ds.Case(id)
		if err != nil {
			return err
		}
		fmt.Println(c)
		err = c.Summarize(os.Stdout)
		if err != nil {
			return err
		}
		images += len(c.Keys())
	}
	fmt.Printf("%s cases, %s images\n", humanize.Comma(int64(len(ids))), humanize.Comma(int64(images)))
	return nil
}

func keys(ds *ai4ar.Dataset, id, pattern string, long bool) error {
	c, err := ds.Case(id)
	if err != nil {
		return err
	}
	var matched []ai4ar.KeyPath
	if pattern == "" {
		matched = c.Keys()
	} else {
		p, err := ai4ar.ParsePattern(pattern)
		if err != nil {
			return err
		}
		for _, e := range c.Tree().Match(p) {
			matched = append(matched, e.Path)
		}
	}
	for _, k := range matched {
		if !long {
			fmt.Println(k)
			continue
		}
		img, err := c.Get(k)
		if err != nil {
			return err
		}
		size := "-"
		if img.File() != "" {
			info, err := os.Stat(img.File())
			if err != nil {
				return err
			}
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Printf("%-40s %-8s %s\n", k, img.Kind(), size)
	}
	return nil
}

func combine(ds *ai4ar.Dataset, id, key string, n int) error {
	c, err := ds.Case(id)
	if err != nil {
		return err
	}
	p, err := ai4ar.ParseKeyPath(key)
	if err != nil {
		return err
	}
	img, err := c.Combined(p, ai4ar.RequiredAgreement(n))
	if err != nil {
		return err
	}
	vol, err := img.Materialize()
	if err != nil {
		return err
	}
	sources := len(c.Tree().Match(img.Source()))
	fmt.Printf("%s: %s of %s voxels from %d sources, slice %d\n",
		p.Combined(), humanize.Comma(int64(vol.Foreground())), humanize.Comma(int64(vol.Len())),
		sources, vol.SelectSlice())
	return nil
}
