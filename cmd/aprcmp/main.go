package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/aprcmp/internal/logging"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError 携带退出码；msg 为空表示详情已经输出过。
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

type rootOptions struct {
	verbose bool
	logger  *zap.Logger
}

// execute 返回进程退出码：0 全部成功，1 有 run 被跳过/失败或运行期错误，2 参数错误。
func execute(args []string, stdout, stderr io.Writer) int {
	o := &rootOptions{logger: zap.NewNop()}
	root := newRootCmd(o)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	// RunE 返回错误时 cobra 不执行 PersistentPostRun，统一在这里 Sync。
	_ = o.logger.Sync()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.msg != "" {
			fmt.Fprintln(stderr, ee.msg)
		}
		return ee.code
	}
	// 其余都来自 cobra 的参数解析/校验。
	fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
	fmt.Fprintln(stderr, `使用 "aprcmp --help" 查看用法。`)
	return 2
}

func newRootCmd(o *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "aprcmp",
		Short: "比较 APR 自动分类与人工分类，输出混淆矩阵",
		Long: `aprcmp 读取 manifest 列出的每个 run（{base}{run}.pcl 与 {base}{run}.acl），
把选定 subsample 的逐 patch 分类累积进 26x26 混淆矩阵，处理完成后写出 ConfusionMatrix.txt。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			o.logger = logging.New(cmd.ErrOrStderr(), o.verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "输出调试日志（stderr）")

	root.AddCommand(
		newRunCmd(o),
		newInspectCmd(o),
		newManifestCmd(o),
		newHistoryCmd(o),
	)
	return root
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
