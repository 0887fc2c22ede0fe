package images

import "context"

// Pipeline runs discovered images through download, optimize, and rehost
// in sequence. It only ever handles the images an event card references,
// never whole-page assets.
type Pipeline struct {
	Downloader *Downloader
	Rehoster   *Rehoster
}

func NewPipeline(downloader *Downloader, rehoster *Rehoster) *Pipeline {
	return &Pipeline{Downloader: downloader, Rehoster: rehoster}
}

// Process runs one image through the full pipeline. A failure at any stage
// returns the image as discovered (un-rehosted) along with the error, so
// callers can fall back to the original source URL rather than losing the
// image entirely.
func (p *Pipeline) Process(ctx context.Context, img Image) (Image, error) {
	img, data, err := p.Downloader.Download(ctx, img)
	if err != nil {
		return img, err
	}
	img = Optimize(img)
	return p.Rehoster.Rehost(ctx, img, data)
}

// ProcessAll runs every image through Process, returning whichever ones
// succeeded. Failures are dropped silently from the result but the caller
// can recover the count by comparing input and output lengths.
func (p *Pipeline) ProcessAll(ctx context.Context, imgs []Image) []Image {
	out := make([]Image, 0, len(imgs))
	for _, img := range imgs {
		processed, err := p.Process(ctx, img)
		if err != nil {
			continue
		}
		out = append(out, processed)
	}
	return out
}
