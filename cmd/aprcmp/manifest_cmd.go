package main

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/aprcmp/internal/infra/fsx"
	"github.com/John-Robertt/aprcmp/internal/manifest"
	"github.com/John-Robertt/aprcmp/internal/scan"
)

func newManifestCmd(o *rootOptions) *cobra.Command {
	var (
		excludeDirs []string
		outFile     string
	)

	cmd := &cobra.Command{
		Use:   "manifest DIR",
		Short: "扫描目录下成对的 .pcl/.acl，生成 manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := scan.ScanRuns(args[0], excludeDirs)
			if err != nil {
				return &exitError{code: 1, msg: fmt.Sprintf("扫描失败：%v", err)}
			}
			for _, orphan := range res.Orphans {
				o.logger.Warn("缺少配对文件，已忽略",
					zap.String("run", orphan.Run),
					zap.String("missing", orphan.Missing),
				)
			}
			if len(res.Runs) == 0 {
				return &exitError{code: 1, msg: fmt.Sprintf("%s 下没有成对的 .pcl/.acl 文件", res.Root)}
			}

			var buf bytes.Buffer
			if err := manifest.Write(&buf, res.Manifest()); err != nil {
				return &exitError{code: 1, msg: err.Error()}
			}

			if outFile == "" {
				if _, err := cmd.OutOrStdout().Write(buf.Bytes()); err != nil {
					return &exitError{code: 1, msg: err.Error()}
				}
				return nil
			}
			abs, err := filepath.Abs(outFile)
			if err != nil {
				return &exitError{code: 1, msg: err.Error()}
			}
			if err := fsx.WriteFileAtomicReplace(filepath.Dir(abs), filepath.Base(abs), buf.Bytes()); err != nil {
				return &exitError{code: 1, msg: fmt.Sprintf("写入 manifest 失败：%v", err)}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "manifest: %s (runs=%d)\n", abs, len(res.Runs))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&excludeDirs, "exclude", nil, "排除的子目录（相对 DIR，可重复）")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "写入文件而不是 stdout")
	return cmd
}
