package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/getcharzp/go-backdrop/pipeline"
	"github.com/getcharzp/go-backdrop/stream"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "离线处理视频文件",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRender(cmd.Context(), opts)
	},
}

func init() {
	renderCmd.Flags().StringVarP(&opts.InputPath, "input", "i", "", "输入视频")
	renderCmd.Flags().StringVarP(&opts.OutputPath, "output", "o", "", "输出视频")

	renderCmd.MarkFlagRequired("input")
	renderCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(renderCmd)
}

// runRender 读取视频文件, 逐帧处理后编码输出
func runRender(ctx context.Context, o Options) error {
	if o.InputPath == o.OutputPath {
		return errors.New("输入与输出不能是同一个文件")
	}
	logger, err := newLogger(o.LogLevel)
	if err != nil {
		return err
	}

	info, err := stream.Probe(ctx, o.InputPath)
	if err != nil {
		return fmt.Errorf("读取视频信息失败: %w", err)
	}
	logger.Info().
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Int("frames", info.Frames).
		Msg("输入视频")

	seg, err := newSegmenter(o)
	if err != nil {
		return err
	}
	defer seg.Destroy()

	comp, err := newCompositor(o, logger)
	if err != nil {
		return err
	}
	drawer, err := newDrawer(o)
	if err != nil {
		return err
	}
	if drawer != nil {
		defer drawer.Close()
	}
	cfg, err := loopConfig(o, seg.personLabel)
	if err != nil {
		return err
	}

	encoder, err := stream.NewEncoder(ctx, stream.EncoderConfig{
		Output: o.OutputPath,
		Width:  info.Width,
		Height: info.Height,
		FPS:    info.FPS,
	})
	if err != nil {
		return err
	}

	total := int64(info.Frames)
	if total <= 0 {
		total = -1 // 未知帧数时显示 spinner
	}
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetDescription("Rendering"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	loop, err := pipeline.NewLoop(cfg, pipeline.Deps{
		Open: func(ctx context.Context) (pipeline.Source, error) {
			src, err := stream.OpenMJPEG(ctx, stream.DefaultSourceConfig(o.InputPath))
			if err != nil {
				return nil, err
			}
			return src, nil
		},
		Segmenter:  seg,
		Compositor: comp,
		Display:    encoder,
		Drawer:     drawer,
		Logger:     logger,
		OnFrame: func(pipeline.Frame) {
			bar.Add(1)
		},
	})
	if err != nil {
		encoder.Close()
		return err
	}

	if err := loop.Run(ctx); err != nil {
		return err
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	logger.Info().
		Int("frames", encoder.Frames()).
		Object("metrics", loop.Metrics()).
		Str("output", o.OutputPath).
		Msg("渲染完成")
	return nil
}
