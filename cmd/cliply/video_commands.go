package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cliply/internal/config"
	"cliply/internal/queue"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	var audioURL string
	var withSubtitles bool
	var withAudio bool
	var withTranscription bool

	cmd := &cobra.Command{
		Use:   "add <url-or-path>",
		Short: "Register a video and enqueue processing tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := strings.TrimSpace(args[0])
			if source == "" {
				return fmt.Errorf("a source URL or file path is required")
			}

			sourceURL, mediaPath, err := resolveSource(source)
			if err != nil {
				return err
			}
			if title == "" {
				title = deriveTitle(source)
			}

			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				video, err := store.NewVideo(cmd.Context(), title, sourceURL, mediaPath)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Registered video %s (%s)\n", video.ID, video.Title)

				mediaRef := sourceURL
				if mediaRef == "" {
					mediaRef = mediaPath
				}
				if withSubtitles {
					task, err := store.Enqueue(cmd.Context(), queue.EnqueueRequest{
						VideoID:  video.ID,
						Type:     queue.TypeSubtitleGeneration,
						MediaURL: mediaRef,
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Enqueued %s task %d\n", task.Type, task.ID)
				}
				if withAudio {
					task, err := store.Enqueue(cmd.Context(), queue.EnqueueRequest{
						VideoID:  video.ID,
						Type:     queue.TypeAudioExtraction,
						MediaURL: mediaRef,
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Enqueued %s task %d\n", task.Type, task.ID)
				}
				if withTranscription {
					if audioURL == "" {
						return fmt.Errorf("transcription needs --audio-url (or run it after audio extraction with `cliply process`)")
					}
					task, err := store.Enqueue(cmd.Context(), queue.EnqueueRequest{
						VideoID:       video.ID,
						Type:          queue.TypeTranscription,
						LocalAudioURL: audioURL,
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Enqueued %s task %d\n", task.Type, task.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Video title (derived from the source when omitted)")
	cmd.Flags().StringVar(&audioURL, "audio-url", "", "Existing audio location for transcription")
	cmd.Flags().BoolVar(&withSubtitles, "subtitles", true, "Enqueue subtitle generation")
	cmd.Flags().BoolVar(&withAudio, "audio", true, "Enqueue audio extraction")
	cmd.Flags().BoolVar(&withTranscription, "transcribe", false, "Enqueue transcription (requires --audio-url)")
	return cmd
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Enqueue missing tasks for every registered video",
		Long: "Walks all registered videos and enqueues the tasks each one " +
			"still needs: subtitle generation and audio extraction for fresh " +
			"videos, transcription once extracted audio is available.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				videos, err := store.ListVideos(cmd.Context())
				if err != nil {
					return err
				}

				enqueued := 0
				for _, video := range videos {
					if video.Status == queue.VideoStatusError {
						continue
					}
					tasks, err := store.TasksByVideo(cmd.Context(), video.ID)
					if err != nil {
						return err
					}
					have := make(map[queue.TaskType]bool, len(tasks))
					for _, task := range tasks {
						have[task.Type] = true
					}

					mediaRef := video.SourceURL
					if mediaRef == "" {
						mediaRef = video.MediaPath
					}
					if !have[queue.TypeSubtitleGeneration] {
						if _, err := store.Enqueue(cmd.Context(), queue.EnqueueRequest{
							VideoID:  video.ID,
							Type:     queue.TypeSubtitleGeneration,
							MediaURL: mediaRef,
						}); err != nil {
							return err
						}
						enqueued++
					}
					if !have[queue.TypeAudioExtraction] {
						if _, err := store.Enqueue(cmd.Context(), queue.EnqueueRequest{
							VideoID:  video.ID,
							Type:     queue.TypeAudioExtraction,
							MediaURL: mediaRef,
						}); err != nil {
							return err
						}
						enqueued++
					}
					if video.AudioURL != "" && !have[queue.TypeTranscription] {
						if _, err := store.Enqueue(cmd.Context(), queue.EnqueueRequest{
							VideoID:       video.ID,
							Type:          queue.TypeTranscription,
							LocalAudioURL: video.AudioURL,
						}); err != nil {
							return err
						}
						enqueued++
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d tasks across %d videos\n", enqueued, len(videos))
				return nil
			})
		},
	}
}

func newVideosCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "videos",
		Short: "List registered videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				videos, err := store.ListVideos(cmd.Context())
				if err != nil {
					return err
				}
				if len(videos) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No videos registered")
					return nil
				}

				rows := make([][]string, 0, len(videos))
				for _, video := range videos {
					rows = append(rows, []string{
						shortID(video.ID),
						truncate(video.Title, 32),
						string(video.Status),
						yesNo(video.SubtitlesJSON != "" || video.SubtitleFile != ""),
						yesNo(video.AudioURL != ""),
						strconv.Itoa(len(video.Highlights)),
						strconv.Itoa(len(video.Clips)),
						video.CreatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Status", "Subs", "Audio", "Highlights", "Clips", "Created"},
					rows, 5, 6))
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <video-id>",
		Short: "Show a video and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				video, err := findVideo(cmd, store, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Video:    %s\n", video.ID)
				fmt.Fprintf(out, "Title:    %s\n", video.Title)
				fmt.Fprintf(out, "Status:   %s\n", video.Status)
				if video.SourceURL != "" {
					fmt.Fprintf(out, "Source:   %s\n", video.SourceURL)
				}
				if video.MediaPath != "" {
					fmt.Fprintf(out, "Media:    %s\n", video.MediaPath)
				}
				if video.AudioURL != "" {
					fmt.Fprintf(out, "Audio:    %s\n", video.AudioURL)
				}
				if video.SubtitleFile != "" {
					fmt.Fprintf(out, "Subtitles: %s\n", video.SubtitleFile)
				}
				if video.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:    %s\n", video.ErrorMessage)
				}
				for _, h := range video.Highlights {
					fmt.Fprintf(out, "Highlight: [%.1f-%.1f] %s\n", h.Start, h.End, h.Text)
				}
				for _, clip := range video.Clips {
					fmt.Fprintf(out, "Clip:     %s [%.1f-%.1f] %dx%d %s\n",
						clip.URL, clip.Start, clip.End, clip.Width, clip.Height, formatBytes(clip.FileSize))
				}

				tasks, err := store.TasksByVideo(cmd.Context(), video.ID)
				if err != nil {
					return err
				}
				if len(tasks) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(tasks))
				for _, task := range tasks {
					rows = append(rows, []string{
						strconv.FormatInt(task.ID, 10),
						string(task.Type),
						string(task.Status),
						taskDetail(task),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Task", "Type", "Status", "Detail"}, rows, 0))
				return nil
			})
		},
	}
}

// findVideo accepts either a full video ID or a unique short prefix.
func findVideo(cmd *cobra.Command, store *queue.Store, ref string) (*queue.Video, error) {
	ref = strings.TrimSpace(ref)
	if video, err := store.VideoByID(cmd.Context(), ref); err == nil {
		return video, nil
	}

	videos, err := store.ListVideos(cmd.Context())
	if err != nil {
		return nil, err
	}
	var match *queue.Video
	for _, video := range videos {
		if strings.HasPrefix(video.ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("video id %q is ambiguous", ref)
			}
			match = video
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no video matches %q", ref)
	}
	return match, nil
}

func resolveSource(source string) (sourceURL, mediaPath string, err error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return source, "", nil
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", "", fmt.Errorf("resolve path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", "", fmt.Errorf("media file %s: %w", abs, err)
	}
	return "", abs, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func formatBytes(size int64) string {
	switch {
	case size >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(size)/(1<<30))
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
