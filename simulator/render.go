package simulator

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/memsim/cache"
	"github.com/vkngwrapper/memsim/memutils"
	"github.com/vkngwrapper/memsim/memutils/metadata"
)

func freeLabel(free bool) string {
	if free {
		return "FREE"
	}
	return "USED"
}

func writeRegionDump(out io.Writer, regions []metadata.RegionInfo) error {
	var sb strings.Builder
	sb.WriteString("Physical Memory Layout:\n")
	for _, r := range regions {
		fmt.Fprintf(&sb, "[%d-%d] %s (%d bytes)\n", r.Start, r.End, freeLabel(r.Free), r.Size)
	}

	_, err := io.WriteString(out, sb.String())
	return err
}

func writeRegionStats(out io.Writer, stats memutils.RegionStats) error {
	var sb strings.Builder
	sb.WriteString("Stats:\n")
	fmt.Fprintf(&sb, "Free Memory: %d bytes\n", stats.FreeBytes)
	fmt.Fprintf(&sb, "Allocated Memory: %d bytes\n", stats.AllocatedBytes)
	fmt.Fprintf(&sb, "Largest Free Block: %d bytes\n", stats.LargestFreeBlock)
	fmt.Fprintf(&sb, "Internal Fragmentation: %g\n", stats.InternalFragmentation)
	fmt.Fprintf(&sb, "External Fragmentation: %.4f\n", stats.ExternalFragmentation)
	fmt.Fprintf(&sb, "Memory Utilization: %.4f\n", stats.Utilization)
	fmt.Fprintf(&sb, "Allocation Requests: %d (%d succeeded, %d failed)\n", stats.Requests, stats.Successes, stats.Failures)
	fmt.Fprintf(&sb, "Allocation Success Rate: %.4f\n", stats.SuccessRate)
	fmt.Fprintf(&sb, "Allocation Failure Rate: %.4f\n", stats.FailureRate)

	_, err := io.WriteString(out, sb.String())
	return err
}

func writeBuddyDump(out io.Writer, chunks []metadata.ChunkInfo, freeLists []int) error {
	var sb strings.Builder
	sb.WriteString("Buddy Memory Layout:\n")
	for _, c := range chunks {
		fmt.Fprintf(&sb, "[%d-%d] %s order %d (%d bytes", c.Offset, c.Offset+c.Size-1, freeLabel(c.Free), c.Order, c.Size)
		if !c.Free {
			fmt.Fprintf(&sb, ", %d requested", c.Requested)
		}
		sb.WriteString(")\n")
	}

	sb.WriteString("Free Lists:\n")
	for order, length := range freeLists {
		if length > 0 {
			fmt.Fprintf(&sb, "  order %d (%d bytes): %d\n", order, 1<<order, length)
		}
	}

	_, err := io.WriteString(out, sb.String())
	return err
}

func writeBuddyStats(out io.Writer, stats memutils.BuddyStats) error {
	var sb strings.Builder
	sb.WriteString("Buddy Stats:\n")
	fmt.Fprintf(&sb, "Free Memory: %d bytes\n", stats.FreeBytes)
	fmt.Fprintf(&sb, "Allocated Memory: %d bytes (%d requested)\n", stats.AllocatedBytes, stats.RequestedBytes)
	fmt.Fprintf(&sb, "Largest Free Chunk: %d bytes\n", stats.LargestFreeChunk)
	fmt.Fprintf(&sb, "Internal Fragmentation: %d bytes\n", stats.InternalFragmentation)
	fmt.Fprintf(&sb, "External Fragmentation: %.4f\n", stats.ExternalFragmentation)
	fmt.Fprintf(&sb, "Memory Utilization: %.4f\n", stats.Utilization)
	fmt.Fprintf(&sb, "Allocation Requests: %d (%d succeeded, %d failed)\n", stats.Requests, stats.Successes, stats.Failures)
	fmt.Fprintf(&sb, "Allocation Success Rate: %.4f\n", stats.SuccessRate)

	_, err := io.WriteString(out, sb.String())
	return err
}

func writeCacheStats(out io.Writer, c *cache.Multilevel) error {
	stats := c.Stats()

	var sb strings.Builder
	fmt.Fprintf(&sb, "L1 hits: %d\n", stats.L1Hits)
	fmt.Fprintf(&sb, "L1 misses: %d\n", stats.L1Misses)
	fmt.Fprintf(&sb, "L1 hit ratio: %.4f\n", c.L1().Stats().HitRatio)
	fmt.Fprintf(&sb, "L2 hits: %d\n", stats.L2Hits)
	fmt.Fprintf(&sb, "L2 misses: %d\n", stats.L2Misses)
	fmt.Fprintf(&sb, "L2 hit ratio: %.4f\n", c.L2().Stats().HitRatio)

	_, err := io.WriteString(out, sb.String())
	return err
}

func writeSummary(out io.Writer, totals memutils.Statistics, detailed memutils.DetailedStatistics) error {
	var sb strings.Builder
	sb.WriteString("Summary:\n")
	fmt.Fprintf(&sb, "Blocks: %d (%d bytes)\n", totals.BlockCount, totals.BlockBytes)
	fmt.Fprintf(&sb, "Allocations: %d (%d bytes)\n", totals.AllocationCount, totals.AllocationBytes)
	fmt.Fprintf(&sb, "Unused Ranges: %d\n", detailed.UnusedRangeCount)

	if detailed.AllocationCount > 0 {
		fmt.Fprintf(&sb, "Allocation Size: min %d, max %d\n", detailed.AllocationSizeMin, detailed.AllocationSizeMax)
	} else {
		sb.WriteString("Allocation Size: none\n")
	}

	if detailed.UnusedRangeCount > 0 {
		fmt.Fprintf(&sb, "Unused Range Size: min %d, max %d\n", detailed.UnusedRangeSizeMin, detailed.UnusedRangeSizeMax)
	} else {
		sb.WriteString("Unused Range Size: none\n")
	}

	_, err := io.WriteString(out, sb.String())
	return err
}

func writeHelp(out io.Writer) error {
	var sb strings.Builder
	sb.WriteString("Available commands:\n")
	for _, name := range commandOrder {
		cmd := commands[name]
		fmt.Fprintf(&sb, "  %-34s %s\n", cmd.usage, cmd.description)
	}

	_, err := io.WriteString(out, sb.String())
	return err
}

func finishJson(out io.Writer, w *jwriter.Writer) error {
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "could not render json")
	}

	_, err := fmt.Fprintf(out, "%s\n", w.Bytes())
	return err
}

func writeJson(out io.Writer, block metadata.BlockMetadata) error {
	w := jwriter.NewWriter()
	obj := w.Object()
	block.BlockJsonData(obj)
	obj.End()

	return finishJson(out, &w)
}

func writeSummaryJson(out io.Writer, totals memutils.Statistics, detailed memutils.DetailedStatistics) error {
	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("BlockCount").Int(totals.BlockCount)
	obj.Name("BlockBytes").Int(totals.BlockBytes)
	obj.Name("AllocationCount").Int(totals.AllocationCount)
	obj.Name("AllocationBytes").Int(totals.AllocationBytes)
	obj.Name("UnusedRangeCount").Int(detailed.UnusedRangeCount)
	if detailed.AllocationCount > 0 {
		obj.Name("AllocationSizeMin").Int(detailed.AllocationSizeMin)
		obj.Name("AllocationSizeMax").Int(detailed.AllocationSizeMax)
	}
	if detailed.UnusedRangeCount > 0 {
		obj.Name("UnusedRangeSizeMin").Int(detailed.UnusedRangeSizeMin)
		obj.Name("UnusedRangeSizeMax").Int(detailed.UnusedRangeSizeMax)
	}
	obj.End()

	return finishJson(out, &w)
}

func writeCacheJson(out io.Writer, c *cache.Multilevel) error {
	stats := c.Stats()

	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("L1Hits").Int(stats.L1Hits)
	obj.Name("L1Misses").Int(stats.L1Misses)
	obj.Name("L1HitRatio").Float64(c.L1().Stats().HitRatio)
	obj.Name("L2Hits").Int(stats.L2Hits)
	obj.Name("L2Misses").Int(stats.L2Misses)
	obj.Name("L2HitRatio").Float64(c.L2().Stats().HitRatio)
	obj.End()

	return finishJson(out, &w)
}
