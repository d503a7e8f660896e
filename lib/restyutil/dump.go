package restyutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"mmp-pipeline/lib/telemetry"

	"github.com/go-resty/resty/v2"
)

const report_dump_write = "restyutil.dump"

type Output interface {
	Write(id string, contents string) error
}

// DirOutput writes every message to its own file in a directory.
type DirOutput struct {
	directory string
}

func NewDirOutput(dir string) (DirOutput, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return DirOutput{}, err
	}
	return DirOutput{directory: dir}, nil
}

func (o DirOutput) Write(id string, contents string) error {
	return os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
}

// Dump writes a transcript of every response the client receives to output,
// named `{prefix}-{n}.txt` in the order responses arrive.
func Dump(client *resty.Client, prefix string, output Output, tel telemetry.API) {
	var counter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := fmt.Sprintf("%s-%d.txt", prefix, atomic.AddUint64(&counter, 1))
		err := output.Write(id, FormatMessage(res))
		if err != nil {
			tel.ReportWarning(report_dump_write, "id", id, "err", err)
		}
		return nil
	})
}
